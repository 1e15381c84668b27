package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mbp/nursecall/internal/config"
	"github.com/mbp/nursecall/internal/platform/db"
	"github.com/mbp/nursecall/internal/platform/events"
)

func performanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "performance",
		Short: "Maintain staff performance snapshots",
	}

	recalc := &cobra.Command{
		Use:   "recalc",
		Short: "Recompute and persist performance snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("staff")
			var staffID uuid.UUID
			if raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --staff: %w", err)
				}
				staffID = id
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := db.NewPool(ctx, poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			c, _, closeCache := openCache(ctx, cfg, logger)
			defer closeCache()
			perf := newServices(pool, c, events.NopPublisher{}, logger).performance

			if staffID != uuid.Nil {
				snap, err := perf.Get(ctx, staffID, true)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "staff %s: %d assigned, %d resolved, %.2f%% resolution rate\n",
					snap.StaffID, snap.TotalAssigned, snap.Resolved, snap.ResolutionRate)
				return nil
			}
			n, err := perf.RecalculateAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recalculated %d staff snapshot(s).\n", n)
			return nil
		},
	}
	recalc.Flags().String("staff", "", "Staff id to recalculate (default: all staff)")
	cmd.AddCommand(recalc)
	return cmd
}
