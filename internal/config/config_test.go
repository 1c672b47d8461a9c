package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Embedding.Provider, cfg.Embedding.Provider)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ParsesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_folder: /tmp/custom
embedding:
  provider: local
  model: my-model
cache:
  max_in_memory: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom", cfg.DataFolder)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, "my-model", cfg.Embedding.Model)
	assert.Equal(t, 500, cfg.Cache.MaxInMemory)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedding:\n  provider: local\n"), 0o644))

	t.Setenv("CONTAINERINDEX_EMBEDDING_PROVIDER", "remote")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "remote", cfg.Embedding.Provider)
}

func TestLoad_InvalidYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10000, cfg.Cache.MaxInMemory)
	assert.Equal(t, 2000, cfg.Index.DebounceMS)
	assert.Equal(t, "sqlite", cfg.Storage.Provider)
}
