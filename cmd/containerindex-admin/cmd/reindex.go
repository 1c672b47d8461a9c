package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReindexCmd() *cobra.Command {
	var world string
	var x, y, z, radius float64

	cmd := &cobra.Command{
		Use:   "reindex-radius",
		Short: "List containers within a radius that a reindex would touch",
		Long: `Lists the container IDs C6 has recorded within radius blocks of (x,y,z).

A radius reindex needs live container contents to re-walk (§4.7), which
this offline tool has no way to read; use this to see what the host's
in-process reindex-radius call would affect before triggering it there.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Shutdown(ctx) }()

			ids, err := eng.ContainersInRadius(ctx, world, x, y, z, radius)
			if err != nil {
				return fmt.Errorf("list containers in radius: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "no containers found in radius")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&world, "world", "", "world name (required)")
	cmd.Flags().Float64Var(&x, "x", 0, "center x")
	cmd.Flags().Float64Var(&y, "y", 0, "center y")
	cmd.Flags().Float64Var(&z, "z", 0, "center z")
	cmd.Flags().Float64Var(&radius, "radius", 16, "radius in blocks")
	_ = cmd.MarkFlagRequired("world")

	return cmd
}
