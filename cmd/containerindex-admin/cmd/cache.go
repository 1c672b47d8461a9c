package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the embedding cache (C4)",
	}
	cmd.AddCommand(newCacheStatsCmd())
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of cached embeddings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			size, err := eng.CacheSize(ctx)
			if err != nil {
				return fmt.Errorf("read cache size: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached embeddings: %d\n", size)
			return nil
		},
	}
}

func newCachePurgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Clear every cached embedding",
		Long:  `Clears both cache tiers. Every item will be re-embedded the next time it is indexed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes")
			}
			ctx := cmd.Context()
			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			if err := eng.PurgeCache(ctx); err != nil {
				return fmt.Errorf("purge cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "embedding cache purged")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
