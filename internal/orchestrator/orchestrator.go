// Package orchestrator sequences one blue-green promotion transaction:
// resolve the active slot, build and start the target, gate on health and
// smoke tests, switch traffic, drain the old slot, exit. Any gated failure
// before the traffic switch rolls back by stopping the target only.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promotectl/internal/compose"
	"promotectl/internal/config"
	"promotectl/internal/drain"
	"promotectl/internal/environment"
	"promotectl/internal/health"
	"promotectl/internal/proxy"
	"promotectl/internal/smoke"
	"promotectl/pkg/logging"
)

const subsystem = "Promotion"

// rollbackTimeout bounds the best-effort target stop during rollback. A
// fresh context is used because the promotion's own context may already be
// cancelled when rollback runs.
const rollbackTimeout = 30 * time.Second

// HealthGate is the readiness gate for the target environment.
type HealthGate interface {
	WaitUntilReady(ctx context.Context, env environment.Environment) (health.Result, error)
}

// SmokeRunner executes the post-start check battery.
type SmokeRunner interface {
	Run(ctx context.Context, env environment.Environment) (smoke.Outcome, error)
}

// TrafficSwitch installs the proxy configuration for the target and reloads
// the proxy.
type TrafficSwitch interface {
	Switch(ctx context.Context, env environment.Environment) error
}

// Drainer shuts down the previously active environment.
type Drainer interface {
	Drain(ctx context.Context, env environment.Environment) (drain.Outcome, error)
}

// PromotionRequest is the immutable unit of work for one invocation.
// Nothing is persisted across runs; the runtime's live state is the sole
// source of truth for the next invocation.
type PromotionRequest struct {
	Forced environment.Color // empty when the target is derived
	Active environment.Environment
	Target environment.Environment
}

// Summary describes how a promotion run ended.
type Summary struct {
	FinalState     State
	ActiveColor    environment.Color // color serving traffic after the run
	HealthAttempts int
	Smoke          smoke.Outcome
	Drain          drain.Outcome
	Drained        bool // whether the drain stage ran
	ReloadFailed   bool // proxy config committed but reload failed
}

// Promoter is the promotion state machine. It is single-use: one Run per
// instance, re-entrant only by running the whole program again.
type Promoter struct {
	cfg      config.Config
	runtime  compose.Runtime
	health   HealthGate
	smoke    SmokeRunner
	switcher TrafficSwitch
	drainer  Drainer

	state State
}

// New wires a Promoter from explicit stage implementations. Tests inject
// fakes here.
func New(cfg config.Config, rt compose.Runtime, gate HealthGate, runner SmokeRunner, switcher TrafficSwitch, drainer Drainer) *Promoter {
	return &Promoter{
		cfg:      cfg,
		runtime:  rt,
		health:   gate,
		smoke:    runner,
		switcher: switcher,
		drainer:  drainer,
		state:    StateResolving,
	}
}

// NewFromConfig wires a Promoter with the real stage implementations.
func NewFromConfig(cfg config.Config) *Promoter {
	rt := compose.NewDockerCompose(cfg.Compose.File, cfg.Compose.Project)
	return New(
		cfg,
		rt,
		health.NewPoller(rt, cfg.Health),
		smoke.NewRunner(cfg.Smoke),
		proxy.NewSwitcher(cfg.Proxy),
		drain.NewController(rt, cfg.Drain),
	)
}

// State returns the machine's current state.
func (p *Promoter) State() State {
	return p.state
}

func (p *Promoter) transition(s State) {
	logging.Info(subsystem, "[%s] -> [%s]", p.state, s)
	p.state = s
}

// Run executes one promotion transaction. The returned Summary is valid
// even when err is non-nil. The stages are strictly sequential: each blocks
// until it completes or times out, and traffic never switches before the
// health and smoke gates have passed.
func (p *Promoter) Run(ctx context.Context, forced string) (Summary, error) {
	var summary Summary

	req, err := p.resolve(ctx, forced)
	if err != nil {
		p.state = StateFailed
		summary.FinalState = p.state
		return summary, err
	}
	summary.ActiveColor = req.Active.Color
	logging.Info(subsystem, "Promoting %s -> %s (target %s on port %d)",
		req.Active.Color, req.Target.Color, req.Target.ContainerName, req.Target.Port)

	// BUILDING: start the target slot. From here on any gated failure
	// stops the target and leaves the active slot serving.
	p.transition(StateBuilding)
	if err := p.runtime.Up(ctx, req.Target.Service); err != nil {
		return p.rollback(summary, req, &BuildError{Service: req.Target.Service, Err: err})
	}

	p.transition(StateAwaitingHealth)
	result, err := p.health.WaitUntilReady(ctx, req.Target)
	summary.HealthAttempts = result.Attempts
	if err != nil {
		return p.rollback(summary, req, err)
	}

	p.transition(StateSmokeTesting)
	outcome, err := p.smoke.Run(ctx, req.Target)
	summary.Smoke = outcome
	if err != nil {
		return p.rollback(summary, req, err)
	}
	if !outcome.Passed() {
		failing, _ := outcome.FailedCheck()
		return p.rollback(summary, req, &SmokeFailureError{Check: failing})
	}

	// SWITCHING: the point of no return. A reload failure past the atomic
	// config replace is reported but never rolled back; the machine still
	// proceeds to drain on a best-effort basis since traffic has nominally
	// moved.
	p.transition(StateSwitching)
	var reloadErr *proxy.ReloadError
	if err := p.switcher.Switch(ctx, req.Target); err != nil {
		if !errors.As(err, &reloadErr) {
			// The config never committed, so traffic never moved. No
			// rollback path exists past SWITCHING: leave both slots running
			// for the operator and report the failure.
			p.state = StateFailed
			summary.FinalState = p.state
			return summary, fmt.Errorf("traffic switch failed before commit: %w", err)
		}
		summary.ReloadFailed = true
		logging.Error(subsystem, reloadErr, "Proxy reload failed; config is committed but the live process may not have picked it up")
	}
	summary.ActiveColor = req.Target.Color

	p.transition(StateDraining)
	var interrupted *InterruptedError
	drainOutcome, err := p.drainer.Drain(ctx, req.Active)
	if err != nil {
		// Drain never undoes the committed switch, but an interruption here
		// must still surface as a non-zero exit.
		logging.Warn(subsystem, "Drain of %s aborted: %v", req.Active.Color, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			interrupted = &InterruptedError{State: StateDraining}
		}
	} else {
		summary.Drain = drainOutcome
		summary.Drained = true
	}

	p.transition(StateDone)
	summary.FinalState = p.state

	if reloadErr != nil {
		return summary, reloadErr
	}
	if interrupted != nil {
		return summary, interrupted
	}
	return summary, nil
}

// resolve validates the forced target (before any runtime call) and
// determines the active and target slots. A forced target bypasses the
// running-state heuristic entirely: the old slot is taken to be the other
// color.
func (p *Promoter) resolve(ctx context.Context, forced string) (PromotionRequest, error) {
	settings := p.cfg.Environments

	if forced != "" {
		color, err := environment.ParseColor(forced)
		if err != nil {
			return PromotionRequest{}, err
		}
		req := PromotionRequest{
			Forced: color,
			Active: environment.New(color.Other(), settings),
			Target: environment.New(color, settings),
		}
		logging.Info(subsystem, "[%s] Target %s forced by operator", p.state, color)
		return req, nil
	}

	running, err := p.runtime.RunningContainers(ctx)
	if err != nil {
		return PromotionRequest{}, fmt.Errorf("querying running containers: %w", err)
	}

	active, err := environment.ResolveActive(environment.Snapshot{Running: running}, settings)
	if err != nil {
		return PromotionRequest{}, err
	}

	target, err := environment.ResolveTarget(active, "", settings)
	if err != nil {
		return PromotionRequest{}, err
	}

	logging.Info(subsystem, "[%s] Active is %s, target is %s", p.state, active.Color, target.Color)
	return PromotionRequest{Active: active, Target: target}, nil
}

// rollback stops the target slot only, preserving the invariant that a
// failed promotion leaves the system in its pre-promotion serving state.
// It runs under a fresh context so a cancelled promotion can still clean
// up.
func (p *Promoter) rollback(summary Summary, req PromotionRequest, cause error) (Summary, error) {
	failedIn := p.state
	p.transition(StateRollingBack)

	if errors.Is(cause, context.Canceled) {
		cause = &InterruptedError{State: failedIn}
	}
	logging.Warn(subsystem, "Rolling back: stopping target %s (active %s is untouched)", req.Target.Color, req.Active.Color)

	stopCtx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()
	if err := p.runtime.Stop(stopCtx, req.Target.Service); err != nil {
		logging.Error(subsystem, err, "Rollback stop of %s failed", req.Target.Service)
	}

	p.transition(StateFailed)
	summary.FinalState = p.state
	summary.ActiveColor = req.Active.Color
	return summary, cause
}
