package compose

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExec intercepts the exec seam, recording each docker invocation and
// replaying canned output. Commands are replayed via `echo` (or `false` for
// failures) so the production stdout/stderr plumbing stays exercised.
type fakeExec struct {
	calls  [][]string
	output string
	fail   bool
}

func (f *fakeExec) install(t *testing.T) {
	t.Helper()
	original := execCommand
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		f.calls = append(f.calls, append([]string{name}, args...))
		if f.fail {
			return exec.CommandContext(ctx, "false")
		}
		return exec.CommandContext(ctx, "echo", f.output)
	}
	t.Cleanup(func() { execCommand = original })
}

func (f *fakeExec) lastCall() string {
	if len(f.calls) == 0 {
		return ""
	}
	return strings.Join(f.calls[len(f.calls)-1], " ")
}

func TestRunningContainers(t *testing.T) {
	fake := &fakeExec{output: "chat-app-blue\nchat-proxy\n"}
	fake.install(t)

	rt := NewDockerCompose("docker-compose.yml", "chat")
	names, err := rt.RunningContainers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"chat-app-blue", "chat-proxy"}, names)
	assert.Equal(t, "docker ps --format {{.Names}}", fake.lastCall())
}

func TestRunningContainersEmpty(t *testing.T) {
	fake := &fakeExec{output: ""}
	fake.install(t)

	rt := NewDockerCompose("", "")
	names, err := rt.RunningContainers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRunningContainersFailure(t *testing.T) {
	fake := &fakeExec{fail: true}
	fake.install(t)

	rt := NewDockerCompose("", "")
	_, err := rt.RunningContainers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing running containers")
}

func TestHealthStatus(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "healthy", output: "healthy", want: "healthy"},
		{name: "unhealthy", output: "unhealthy", want: "unhealthy"},
		{name: "starting", output: "starting", want: "starting"},
		{name: "no healthcheck declared", output: "unknown", want: "unknown"},
		{name: "blank output", output: "", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeExec{output: tt.output}
			fake.install(t)

			rt := NewDockerCompose("", "")
			status, err := rt.HealthStatus(context.Background(), "chat-app-green")
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
			assert.Contains(t, fake.lastCall(), "docker inspect -f")
			assert.Contains(t, fake.lastCall(), "chat-app-green")
		})
	}
}

func TestExecBuildsComposeCommand(t *testing.T) {
	fake := &fakeExec{output: "ok"}
	fake.install(t)

	rt := NewDockerCompose("docker-compose.yml", "chat")
	out, err := rt.Exec(context.Background(), "app-green", "curl", "-sf", "http://localhost:8000/readyz")
	require.NoError(t, err)

	assert.Equal(t, "ok", strings.TrimSpace(out))
	assert.Equal(t,
		"docker compose -f docker-compose.yml -p chat exec -T app-green curl -sf http://localhost:8000/readyz",
		fake.lastCall())
}

func TestUpStopKill(t *testing.T) {
	fake := &fakeExec{output: ""}
	fake.install(t)

	rt := NewDockerCompose("docker-compose.yml", "chat")
	ctx := context.Background()

	require.NoError(t, rt.Up(ctx, "app-green"))
	assert.Equal(t, "docker compose -f docker-compose.yml -p chat up -d --build app-green", fake.lastCall())

	require.NoError(t, rt.Stop(ctx, "app-blue"))
	assert.Equal(t, "docker compose -f docker-compose.yml -p chat stop app-blue", fake.lastCall())

	require.NoError(t, rt.Kill(ctx, "app-blue", "SIGTERM"))
	assert.Equal(t, "docker compose -f docker-compose.yml -p chat kill -s SIGTERM app-blue", fake.lastCall())
}

func TestUpFailure(t *testing.T) {
	fake := &fakeExec{fail: true}
	fake.install(t)

	rt := NewDockerCompose("", "")
	err := rt.Up(context.Background(), "app-green")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting service app-green")
}

func TestComposeArgsOmitEmptyFlags(t *testing.T) {
	fake := &fakeExec{output: ""}
	fake.install(t)

	rt := NewDockerCompose("", "")
	require.NoError(t, rt.Stop(context.Background(), "app-blue"))
	assert.Equal(t, "docker compose stop app-blue", fake.lastCall())
}
