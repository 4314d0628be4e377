// Package drain shuts down the previously active environment after traffic
// has moved: graceful termination first, force-stop once the budget is
// spent.
package drain

import (
	"context"
	"time"

	"promotectl/internal/compose"
	"promotectl/internal/config"
	"promotectl/internal/environment"
	"promotectl/pkg/logging"
)

// Outcome is the tri-state result of a drain.
type Outcome int

const (
	// Graceful means the container exited on its own after SIGTERM within
	// the budget.
	Graceful Outcome = iota
	// Forced means the budget ran out and the container was force-stopped.
	Forced
	// AlreadyGone means the container was not running when the drain began.
	AlreadyGone
)

func (o Outcome) String() string {
	switch o {
	case Graceful:
		return "graceful"
	case Forced:
		return "forced"
	case AlreadyGone:
		return "already-gone"
	default:
		return "unknown"
	}
}

// Controller drains one environment. Draining never fails a promotion: the
// only error it returns is context cancellation.
type Controller struct {
	runtime      compose.Runtime
	maxWait      time.Duration
	pollInterval time.Duration
}

// NewController creates a Controller from the drain settings.
func NewController(rt compose.Runtime, settings config.DrainSettings) *Controller {
	return &Controller{
		runtime:      rt,
		maxWait:      settings.MaxWait.Std(),
		pollInterval: time.Second,
	}
}

// Drain sends SIGTERM to the environment's primary process, then polls the
// running-container list once per interval until the container disappears
// or the budget is spent. On budget exhaustion it issues an unconditional
// stop regardless of outcome.
func (c *Controller) Drain(ctx context.Context, env environment.Environment) (Outcome, error) {
	if gone, err := c.isGone(ctx, env); err != nil {
		return Forced, err
	} else if gone {
		logging.Info("Drain", "%s is not running, nothing to drain", env.ContainerName)
		return AlreadyGone, nil
	}

	if err := c.runtime.Kill(ctx, env.Service, "SIGTERM"); err != nil {
		if ctx.Err() != nil {
			return Forced, ctx.Err()
		}
		// Signal delivery failed; the force-stop below still bounds the drain.
		logging.Warn("Drain", "Failed to signal %s: %v", env.Service, err)
	} else {
		logging.Info("Drain", "Sent SIGTERM to %s, waiting up to %s for graceful exit", env.Service, c.maxWait)
	}

	deadline := time.Now().Add(c.maxWait)
	for time.Now().Before(deadline) {
		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return Forced, err
		}

		gone, err := c.isGone(ctx, env)
		if err != nil {
			return Forced, err
		}
		if gone {
			logging.Info("Drain", "%s exited gracefully", env.ContainerName)
			return Graceful, nil
		}
	}

	// Drain timed out. Force-stop is best-effort and never fails the
	// promotion; a stop error is only logged.
	logging.Warn("Drain", "%s still running after %s, force-stopping", env.ContainerName, c.maxWait)
	if err := c.runtime.Stop(ctx, env.Service); err != nil {
		if ctx.Err() != nil {
			return Forced, ctx.Err()
		}
		logging.Error("Drain", err, "Force-stop of %s failed", env.Service)
	}
	return Forced, nil
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Controller) isGone(ctx context.Context, env environment.Environment) (bool, error) {
	running, err := c.runtime.RunningContainers(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// A flaky runtime query should not abort the drain; treat the
		// container as still present and keep polling.
		logging.Debug("Drain", "Listing containers failed: %v", err)
		return false, nil
	}
	snap := environment.Snapshot{Running: running}
	return !snap.Contains(env.ContainerName), nil
}
