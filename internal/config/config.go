// Package config loads the container index's configuration surface
// (spec.md §6), following the teacher's layered YAML + environment
// variable override pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration surface recognized by the
// container index, mirroring spec.md §6.
type Config struct {
	DataFolder string          `yaml:"data_folder"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	Cache      CacheConfig     `yaml:"cache"`
	Index      IndexConfig     `yaml:"index"`
	Storage    StorageConfig   `yaml:"storage"`
}

// EmbeddingConfig configures C3.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "remote" or "local"
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	Endpoint  string `yaml:"endpoint"`
	Dimension int    `yaml:"dimension"` // 0 = provider-declared
	Prefix    string `yaml:"prefix_strategy"`
}

// CacheConfig configures C4.
type CacheConfig struct {
	MaxInMemory int `yaml:"max_in_memory"`
}

// IndexConfig configures C5/C7.
type IndexConfig struct {
	DebounceMS         int     `yaml:"debounce_ms"`
	GraphDegree         int     `yaml:"graph_degree"`
	ConstructionDepth   int     `yaml:"construction_depth"`
	OverflowFactor      float64 `yaml:"overflow_factor"`
	Alpha               float64 `yaml:"alpha"`
}

// StorageConfig configures C6's backing store.
type StorageConfig struct {
	Provider string `yaml:"provider"` // "sqlite"
	Path     string `yaml:"path"`
}

// Default returns the configuration with every default named in §6.
func Default() Config {
	return Config{
		DataFolder: "./data",
		Embedding: EmbeddingConfig{
			Provider: "remote",
			Model:    "text-embedding-default",
			Prefix:   "none",
		},
		Cache: CacheConfig{
			MaxInMemory: 10000,
		},
		Index: IndexConfig{
			DebounceMS:        2000,
			GraphDegree:       16,
			ConstructionDepth: 100,
			OverflowFactor:    1.2,
			Alpha:             1.2,
		},
		Storage: StorageConfig{
			Provider: "sqlite",
			Path:     "./data/metadata.db",
		},
	}
}

// Load starts from Default(), reads a YAML config file over it (keys
// absent from the file keep their defaults; a key set to zero stays
// zero), and then applies CONTAINERINDEX_-prefixed environment
// overrides (highest priority), matching the teacher's layering order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnv(cfg), nil
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if v, ok := lookupEnv("EMBEDDING_PROVIDER"); ok {
		cfg.Embedding.Provider = v
	}
	if v, ok := lookupEnv("EMBEDDING_MODEL"); ok {
		cfg.Embedding.Model = v
	}
	if v, ok := lookupEnv("EMBEDDING_API_KEY"); ok {
		cfg.Embedding.APIKey = v
	}
	if v, ok := lookupEnv("EMBEDDING_ENDPOINT"); ok {
		cfg.Embedding.Endpoint = v
	}
	if v, ok := lookupEnvInt("EMBEDDING_DIMENSION"); ok {
		cfg.Embedding.Dimension = v
	}
	if v, ok := lookupEnvInt("CACHE_MAX_IN_MEMORY"); ok {
		cfg.Cache.MaxInMemory = v
	}
	if v, ok := lookupEnvInt("INDEX_DEBOUNCE_MS"); ok {
		cfg.Index.DebounceMS = v
	}
	if v, ok := lookupEnv("STORAGE_PATH"); ok {
		cfg.Storage.Path = v
	}
	return cfg
}

const envPrefix = "CONTAINERINDEX_"

func lookupEnv(suffix string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + suffix)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func lookupEnvInt(suffix string) (int, bool) {
	v, ok := lookupEnv(suffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
