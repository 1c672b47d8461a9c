package embed

import (
	"fmt"
	"path/filepath"

	"github.com/kitsune-search/containerindex/internal/config"
)

// NewFromConfig builds the Provider variant selected by cfg.Embedding
// (§4.3, §6 "embedding.provider: {remote,local}").
func NewFromConfig(cfg config.EmbeddingConfig, dataFolder string) (Provider, error) {
	switch cfg.Provider {
	case "", "remote":
		return NewRemoteHTTPEmbedder(RemoteConfig{
			Endpoint:      cfg.Endpoint,
			APIKey:        cfg.APIKey,
			Model:         cfg.Model,
			Dimension:     cfg.Dimension,
			SupportsBatch: true,
			TaskParam:     true,
		}), nil
	case "local":
		libPath := filepath.Join(dataFolder, "models", cfg.Model+DefaultLibraryExtension())
		tokPath := filepath.Join(dataFolder, "models", "tokenizer.json")
		return NewLocalModelEmbedder(LocalConfig{
			LibraryPath:   libPath,
			TokenizerPath: tokPath,
			Dimension:     cfg.Dimension,
			Prefix:        ParsePrefixStrategy(cfg.Prefix),
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
