package main

import (
	"context"
	"encoding/json"
	"fmt"

	"interior/internal/app"
	"interior/internal/config"

	"github.com/spf13/cobra"
)

// appLoader 延迟装配，--help 不需要数据库。
type appLoader func(ctx context.Context) (*app.App, error)

func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.ParseConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func newRootCmd(load appLoader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "worker",
		Short:         "Cron jobs for the generation pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.AddCommand(
		newSweepCmd(load),
		newReconcileCmd(load),
	)
	return rootCmd
}

func newSweepCmd(load appLoader) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Poll every generation still waiting on the provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return fmt.Errorf("wire app: %w", err)
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.Config.SweepBatchSize
			}
			report, err := a.Tracking.Sweep(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			return writeJSON(cmd, report)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max generations to poll (default SWEEP_BATCH_SIZE)")
	return cmd
}

func newReconcileCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Verify balance == sum(transactions) for every account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return fmt.Errorf("wire app: %w", err)
			}
			defer a.Close()

			drifts, checked, err := a.Credits.Reconcile(cmd.Context())
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			if err := writeJSON(cmd, map[string]any{"checked": checked, "drifts": drifts}); err != nil {
				return err
			}
			if len(drifts) > 0 {
				return fmt.Errorf("ledger drift on %d account(s)", len(drifts))
			}
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
