package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"promotectl/internal/config"
	"promotectl/internal/environment"
	"promotectl/internal/smoke"
)

func newSmokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "smoke <blue|green>",
		Short: "Run the smoke test battery against one slot",
		Long: `Runs the same post-start checks a promotion gates on, against the given
slot's published port, without touching containers or the proxy. Useful for
verifying a slot by hand before or after a promotion.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			color, err := environment.ParseColor(args[0])
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			env := environment.New(color, cfg.Environments)
			runner := smoke.NewRunner(cfg.Smoke)

			outcome, err := runner.Run(cmd.Context(), env)
			for _, check := range outcome.Checks {
				if check.Passed {
					cmd.Printf("  PASS  %s\n", check.Name)
				} else {
					cmd.Printf("  FAIL  %s: %s\n", check.Name, check.Detail)
				}
			}
			if err != nil {
				return err
			}
			if failing, ok := outcome.FailedCheck(); ok {
				return fmt.Errorf("smoke check %s failed against %s", failing.Name, color)
			}
			cmd.Printf("All smoke checks passed against %s (port %d)\n", color, env.Port)
			return nil
		},
	}
}
