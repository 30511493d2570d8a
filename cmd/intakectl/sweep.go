package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var staleAfter time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Re-enqueue identity documents stuck in pending",
		Long: `Re-enqueue identity documents whose verification has been pending longer
than --stale-after, for every active tenant. Processing is idempotent, so a
document that is merely slow is verified once more at worst.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer deps.Close()
			if deps.InProcessQueue() {
				return fmt.Errorf("REDIS_URL is required")
			}
			if staleAfter > 0 {
				deps.Config.Reconcile.StaleAfter = staleAfter
			}

			report, err := deps.Sweeper().SweepOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenants=%d requeued=%d failed=%d\n", report.Tenants, report.Requeued, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d documents or tenants could not be swept", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "override RECONCILE_STALE_AFTER")
	return cmd
}
