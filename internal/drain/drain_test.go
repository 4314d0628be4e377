package drain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promotectl/internal/config"
	"promotectl/internal/environment"
)

// fakeRuntime tracks signal/stop calls and lets tests script when the
// container disappears from the running set.
type fakeRuntime struct {
	mu          sync.Mutex
	running     map[string]bool
	listCount   int
	goneAfter   int // container disappears after this many list calls (0 = never)
	killErr     error
	stopErr     error
	listErr     error
	kills       []string
	stops       []string
	stopRemoves bool // Stop removes the container from the running set
}

func (f *fakeRuntime) RunningContainers(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.listCount++
	if f.goneAfter > 0 && f.listCount > f.goneAfter {
		return nil, nil
	}
	var names []string
	for name, up := range f.running {
		if up {
			names = append(names, name)
		}
	}
	return names, nil
}

func (f *fakeRuntime) Kill(ctx context.Context, service, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kills = append(f.kills, service+":"+signal)
	return f.killErr
}

func (f *fakeRuntime) Stop(ctx context.Context, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, service)
	if f.stopRemoves {
		for name := range f.running {
			f.running[name] = false
		}
	}
	return f.stopErr
}

func (f *fakeRuntime) HealthStatus(ctx context.Context, container string) (string, error) {
	return "unknown", nil
}

func (f *fakeRuntime) Exec(ctx context.Context, service string, command ...string) (string, error) {
	return "", nil
}

func (f *fakeRuntime) Up(ctx context.Context, service string) error { return nil }

func testEnv() environment.Environment {
	return environment.New(environment.Blue, config.EnvironmentSettings{
		ContainerPrefix: "chat-app",
		BluePort:        8001,
		GreenPort:       8002,
		AppPort:         8000,
	})
}

func newTestController(rt *fakeRuntime, maxWait time.Duration) *Controller {
	c := NewController(rt, config.DrainSettings{MaxWait: config.Duration(maxWait)})
	c.pollInterval = 5 * time.Millisecond
	return c
}

func TestDrainAlreadyGone(t *testing.T) {
	rt := &fakeRuntime{running: map[string]bool{"chat-proxy": true}}

	outcome, err := newTestController(rt, 100*time.Millisecond).Drain(context.Background(), testEnv())
	require.NoError(t, err)

	assert.Equal(t, AlreadyGone, outcome)
	assert.Empty(t, rt.kills)
	assert.Empty(t, rt.stops)
}

func TestDrainGraceful(t *testing.T) {
	rt := &fakeRuntime{
		running:   map[string]bool{"chat-app-blue": true},
		goneAfter: 3, // present at first check, gone on a later poll
	}

	outcome, err := newTestController(rt, time.Second).Drain(context.Background(), testEnv())
	require.NoError(t, err)

	assert.Equal(t, Graceful, outcome)
	assert.Equal(t, []string{"app-blue:SIGTERM"}, rt.kills)
	assert.Empty(t, rt.stops, "graceful exit must not be force-stopped")
}

func TestDrainForcedAfterBudget(t *testing.T) {
	rt := &fakeRuntime{
		running:     map[string]bool{"chat-app-blue": true},
		stopRemoves: true,
	}
	maxWait := 50 * time.Millisecond

	start := time.Now()
	outcome, err := newTestController(rt, maxWait).Drain(context.Background(), testEnv())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, Forced, outcome)
	assert.Equal(t, []string{"app-blue:SIGTERM"}, rt.kills)
	assert.Equal(t, []string{"app-blue"}, rt.stops)
	assert.Less(t, elapsed, maxWait+time.Second, "drain must finish within maxWait plus one second")
}

func TestDrainForcedEvenWhenStopFails(t *testing.T) {
	rt := &fakeRuntime{
		running: map[string]bool{"chat-app-blue": true},
		stopErr: errors.New("stop failed"),
	}

	outcome, err := newTestController(rt, 30*time.Millisecond).Drain(context.Background(), testEnv())
	require.NoError(t, err, "drain never fails the promotion")
	assert.Equal(t, Forced, outcome)
}

func TestDrainSignalFailureStillBounded(t *testing.T) {
	rt := &fakeRuntime{
		running: map[string]bool{"chat-app-blue": true},
		killErr: errors.New("no such process"),
	}

	outcome, err := newTestController(rt, 30*time.Millisecond).Drain(context.Background(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, Forced, outcome)
	assert.NotEmpty(t, rt.stops)
}

func TestDrainListErrorsAreTolerated(t *testing.T) {
	rt := &fakeRuntime{
		running: map[string]bool{"chat-app-blue": true},
		listErr: errors.New("runtime busy"),
	}

	// With the list always failing the controller cannot observe the exit
	// and must fall through to the force-stop.
	outcome, err := newTestController(rt, 30*time.Millisecond).Drain(context.Background(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, Forced, outcome)
}

func TestDrainContextCancelled(t *testing.T) {
	rt := &fakeRuntime{running: map[string]bool{"chat-app-blue": true}}

	ctx, cancel := context.WithCancel(context.Background())
	controller := newTestController(rt, time.Minute)
	controller.pollInterval = time.Hour // would block without cancellation

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := controller.Drain(ctx, testEnv())
	require.ErrorIs(t, err, context.Canceled)
}
