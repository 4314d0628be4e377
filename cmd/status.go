package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"promotectl/internal/compose"
	"promotectl/internal/config"
	"promotectl/internal/environment"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which environment is currently active",
		Long: `Queries the container runtime for the blue and green slots and reports
which one is serving traffic. No stored state is consulted: the running
containers are the single source of truth.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			rt := compose.NewDockerCompose(cfg.Compose.File, cfg.Compose.Project)
			running, err := rt.RunningContainers(cmd.Context())
			if err != nil {
				return fmt.Errorf("querying running containers: %w", err)
			}
			snap := environment.Snapshot{Running: running}

			active, err := environment.ResolveActive(snap, cfg.Environments)
			switch {
			case errors.Is(err, environment.ErrAmbiguousState):
				cmd.Println("Active: ambiguous (both slots are running)")
			case errors.Is(err, environment.ErrNoEnvironmentRunning):
				cmd.Println("Active: none (neither slot is running)")
			case err != nil:
				return err
			default:
				cmd.Printf("Active: %s\n", active.Color)
			}

			for _, color := range []environment.Color{environment.Blue, environment.Green} {
				env := environment.New(color, cfg.Environments)
				state := "stopped"
				if snap.Contains(env.ContainerName) {
					state = "running"
					if health, err := rt.HealthStatus(cmd.Context(), env.ContainerName); err == nil {
						state = fmt.Sprintf("running (%s)", health)
					}
				}
				cmd.Printf("  %-5s  %s  port %d  %s\n", color, env.ContainerName, env.Port, state)
			}
			return nil
		},
	}
}
