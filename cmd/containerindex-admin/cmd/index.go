package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and maintain the vector index (C5) and metadata store (C6)",
	}
	cmd.AddCommand(newIndexStatsCmd())
	cmd.AddCommand(newIndexPurgeCmd())
	return cmd
}

func newIndexStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show vector index and item counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			items, err := eng.ItemCount(ctx)
			if err != nil {
				return fmt.Errorf("read item count: %w", err)
			}
			vectors, err := eng.VectorIndexSize()
			if err != nil {
				return fmt.Errorf("read vector count: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "indexed items:   %d\n", items)
			fmt.Fprintf(out, "vectors in C5:   %d\n", vectors)
			return nil
		},
	}
}

func newIndexPurgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge-vectors",
		Short: "Drop every vector from the nearest-neighbor index",
		Long:  `Drops C5's in-memory vector map and graph without touching C6's metadata, and persists the now-empty index on shutdown. The next engine start re-seeds it from cached embeddings for the items C6 still records.`,
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

			if err := eng.PurgeVectorIndex(); err != nil {
				return fmt.Errorf("purge vector index: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "vector index purged")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
