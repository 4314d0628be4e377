// Package health gates a promotion on the target environment becoming both
// runtime-healthy and application-ready.
package health

import (
	"context"
	"fmt"
	"time"

	"promotectl/internal/compose"
	"promotectl/internal/config"
	"promotectl/internal/environment"
	"promotectl/pkg/logging"
)

// Result reports the outcome of the readiness gate. Healthy and Ready refer
// to the last attempt made.
type Result struct {
	Healthy  bool
	Ready    bool
	Attempts int
}

// TimeoutError means the target never produced a fully healthy and ready
// attempt within the retry budget.
type TimeoutError struct {
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("environment did not become healthy and ready within %d attempts", e.Attempts)
}

// attemptTimeout bounds each individual probe pair.
const attemptTimeout = 10 * time.Second

// Poller polls a target environment until it is healthy and ready, or the
// retry budget is exhausted. It is synchronous: the caller blocks until a
// verdict is reached.
type Poller struct {
	runtime compose.Runtime
	retries int
	delay   time.Duration
}

// NewPoller creates a Poller from the health settings.
func NewPoller(rt compose.Runtime, settings config.HealthSettings) *Poller {
	return &Poller{
		runtime: rt,
		retries: settings.Retries,
		delay:   settings.Delay.Std(),
	}
}

// WaitUntilReady makes up to the configured number of attempts. An attempt
// succeeds only when the runtime healthcheck reports "healthy" AND the
// in-container readiness probe succeeds on that same attempt; a flapping
// environment never passes. Between failed attempts the poller sleeps a
// fixed delay with no backoff.
func (p *Poller) WaitUntilReady(ctx context.Context, env environment.Environment) (Result, error) {
	var last Result

	for attempt := 1; attempt <= p.retries; attempt++ {
		last.Attempts = attempt

		healthy, ready := p.probe(ctx, env, attempt)
		last.Healthy = healthy
		last.Ready = ready

		if healthy && ready {
			logging.Info("HealthPoller", "%s healthy and ready after %d attempt(s)", env.ContainerName, attempt)
			return last, nil
		}

		if attempt < p.retries {
			if err := sleepCtx(ctx, p.delay); err != nil {
				return last, err
			}
		}
	}

	return last, &TimeoutError{Attempts: last.Attempts}
}

// probe performs the two read-only checks for one attempt.
func (p *Poller) probe(ctx context.Context, env environment.Environment, attempt int) (healthy, ready bool) {
	probeCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	status, err := p.runtime.HealthStatus(probeCtx, env.ContainerName)
	if err != nil {
		logging.Debug("HealthPoller", "Attempt %d: health probe for %s failed: %v", attempt, env.ContainerName, err)
	} else {
		// Any non-"healthy" status (unhealthy, starting, unknown) counts as
		// a failed attempt.
		healthy = status == "healthy"
		if !healthy {
			logging.Debug("HealthPoller", "Attempt %d: %s health status is %q", attempt, env.ContainerName, status)
		}
	}

	readyzURL := fmt.Sprintf("http://localhost:%d/readyz", env.AppPort)
	if _, err := p.runtime.Exec(probeCtx, env.Service, "curl", "-sf", readyzURL); err != nil {
		logging.Debug("HealthPoller", "Attempt %d: readiness probe for %s failed: %v", attempt, env.Service, err)
	} else {
		ready = true
	}

	return healthy, ready
}

// sleepCtx sleeps for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
