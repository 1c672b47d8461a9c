// Package cmd provides the containerindex-admin CLI commands: operator
// tooling for the container index, distinct from the host's
// player-facing command surface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kitsune-search/containerindex/internal/config"
	"github.com/kitsune-search/containerindex/pkg/engine"
	"github.com/kitsune-search/containerindex/pkg/version"
)

var configPath string

// NewRootCmd creates the root command for containerindex-admin.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containerindex-admin",
		Short:   "Operator tooling for the container item index",
		Long:    `containerindex-admin inspects and maintains a container item index's cache, vector index, and metadata store out-of-process.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("containerindex-admin version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (defaults built in if omitted)")

	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// openEngine loads config and constructs an Engine, for commands that
// need full access to C1-C8.
func openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return engine.New(ctx, cfg)
}
