package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"promotectl/internal/config"
	"promotectl/internal/orchestrator"
	"promotectl/pkg/logging"
)

func newPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote [blue|green]",
		Short: "Promote the standby environment to serve live traffic",
		Long: `Runs one promotion transaction end to end:

  1. Resolve which slot is active and which is the target.
  2. Build and start the target slot.
  3. Poll the target until it is healthy and ready.
  4. Run the smoke test battery against the target.
  5. Atomically switch the reverse proxy to the target and hot-reload it.
  6. Drain and stop the old slot.

Any failure in steps 2-4 rolls back by stopping the target; the previously
active slot keeps serving. Once the proxy switch has committed there is no
rollback path.

An optional positional color forces the target slot, bypassing the
running-state check. This is the escape hatch when both slots are running
after a crashed promotion.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			forced := ""
			if len(args) == 1 {
				forced = args[0]
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			promoter := orchestrator.NewFromConfig(cfg)
			summary, err := promoter.Run(ctx, forced)

			// Final status line: success or failure plus the resulting
			// active color, for humans and calling automation alike.
			switch {
			case err == nil:
				logging.Info("Promotion", "Promotion succeeded: %s is active (health attempts: %d, drain: %s)",
					summary.ActiveColor, summary.HealthAttempts, summary.Drain)
				return nil
			case summary.ReloadFailed:
				logging.Error("Promotion", err, "Promotion finished with a proxy reload failure: config targets %s but the live proxy may not have reloaded", summary.ActiveColor)
				return err
			default:
				if summary.ActiveColor != "" {
					logging.Error("Promotion", err, "Promotion failed in %s: %s remains active", summary.FinalState, summary.ActiveColor)
				} else {
					logging.Error("Promotion", err, "Promotion failed in %s", summary.FinalState)
				}
				return err
			}
		},
	}
}
