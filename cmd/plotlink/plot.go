package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/plotlink/internal/cli"
	"github.com/aretw0/plotlink/internal/presentation/graph"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/ports"
	"github.com/spf13/cobra"
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Inspect persisted plot snapshots",
	Long: `Reads the snapshot store configured in store.kind. Only the file and redis
stores outlive the server process; the memory store is always empty here.`,
}

var plotLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored plots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store ports.PlotStore) error {
			snaps, err := loadAll(ctx, store)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plots stored.")
				return nil
			}
			return cli.WriteMarkdown(cmd.OutOrStdout(), "# Plots\n\n"+cli.PlotTable(snaps, time.Now()))
		})
	},
}

var plotInspectCmd = &cobra.Command{
	Use:   "inspect <plot-id>",
	Short: "Show one stored plot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withGraph, _ := cmd.Flags().GetBool("graph")
		return withStore(cmd, func(ctx context.Context, store ports.PlotStore) error {
			snap, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			return cli.WriteMarkdown(cmd.OutOrStdout(), cli.PlotReport(snap, time.Now(), withGraph))
		})
	},
}

var plotGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print a Mermaid diagram of stored plots and their clients",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store ports.PlotStore) error {
			snaps, err := loadAll(ctx, store)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(snaps))
			return nil
		})
	},
}

var plotRmCmd = &cobra.Command{
	Use:   "rm <plot-id>...",
	Short: "Delete stored plot snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store ports.PlotStore) error {
			for _, id := range args {
				if err := store.Delete(ctx, id); err != nil {
					return fmt.Errorf("failed to delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(plotCmd)
	plotCmd.AddCommand(plotLsCmd, plotInspectCmd, plotGraphCmd, plotRmCmd)
	plotInspectCmd.Flags().Bool("graph", false, "Append a Mermaid diagram")
}

func withStore(cmd *cobra.Command, fn func(context.Context, ports.PlotStore) error) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	backend, err := cli.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(ctx, backend.Store)
}

// loadAll loads every listed snapshot, skipping plots deleted meanwhile.
func loadAll(ctx context.Context, store ports.PlotStore) ([]*domain.Snapshot, error) {
	ids, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	snaps := make([]*domain.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := store.Load(ctx, id)
		if errors.Is(err, domain.ErrPlotNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
