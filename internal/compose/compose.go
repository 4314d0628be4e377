// Package compose is the container runtime control plane used by the
// promotion pipeline. It shells out to docker / docker compose rather than
// linking a daemon client, matching how the surrounding automation drives
// the stack.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"promotectl/pkg/logging"
)

// Runtime is the subset of container runtime operations the promotion
// pipeline needs. The orchestrator and stage components depend on this
// interface so tests can inject a fake.
type Runtime interface {
	// RunningContainers returns the names of currently running containers.
	RunningContainers(ctx context.Context) ([]string, error)

	// HealthStatus returns the runtime-level health of a container as
	// reported by its declared healthcheck: "healthy", "unhealthy",
	// "starting", or "unknown" when no healthcheck is declared.
	HealthStatus(ctx context.Context, container string) (string, error)

	// Exec runs a command inside a compose service's container and returns
	// combined stdout.
	Exec(ctx context.Context, service string, command ...string) (string, error)

	// Up builds and starts a compose service in detached mode.
	Up(ctx context.Context, service string) error

	// Stop stops a compose service.
	Stop(ctx context.Context, service string) error

	// Kill delivers a signal to a compose service's primary process.
	Kill(ctx context.Context, service string, signal string) error
}

// For mocking in tests
var execCommand = exec.CommandContext

// DockerCompose implements Runtime against the docker CLI.
type DockerCompose struct {
	File    string // Compose file path
	Project string // Compose project name
}

// NewDockerCompose creates a Runtime bound to one compose file and project.
func NewDockerCompose(file, project string) *DockerCompose {
	return &DockerCompose{File: file, Project: project}
}

// composeArgs prefixes the file and project flags every compose subcommand
// needs.
func (d *DockerCompose) composeArgs(args ...string) []string {
	base := []string{"compose"}
	if d.File != "" {
		base = append(base, "-f", d.File)
	}
	if d.Project != "" {
		base = append(base, "-p", d.Project)
	}
	return append(base, args...)
}

// run executes a docker command, capturing stdout and stderr separately so
// failures carry the CLI's diagnostics.
func (d *DockerCompose) run(ctx context.Context, args ...string) (string, error) {
	cmd := execCommand(ctx, "docker", args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	logging.Debug("Compose", "Running: docker %s", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		stderr := strings.TrimSpace(stderrBuf.String())
		if stderr != "" {
			return stdoutBuf.String(), fmt.Errorf("docker %s: %w: %s", args[0], err, stderr)
		}
		return stdoutBuf.String(), fmt.Errorf("docker %s: %w", args[0], err)
	}
	return stdoutBuf.String(), nil
}

// RunningContainers lists running container names via `docker ps`.
func (d *DockerCompose) RunningContainers(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "ps", "--format", "{{.Names}}")
	if err != nil {
		return nil, fmt.Errorf("listing running containers: %w", err)
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// HealthStatus inspects the container's healthcheck state.
func (d *DockerCompose) HealthStatus(ctx context.Context, container string) (string, error) {
	out, err := d.run(ctx, "inspect", "-f", "{{if .State.Health}}{{.State.Health.Status}}{{else}}unknown{{end}}", container)
	if err != nil {
		return "", fmt.Errorf("inspecting health of %s: %w", container, err)
	}

	status := strings.TrimSpace(out)
	if status == "" {
		status = "unknown"
	}
	return status, nil
}

// Exec runs a command inside the service container. -T disables TTY
// allocation so this works from non-interactive automation.
func (d *DockerCompose) Exec(ctx context.Context, service string, command ...string) (string, error) {
	args := d.composeArgs(append([]string{"exec", "-T", service}, command...)...)
	out, err := d.run(ctx, args...)
	if err != nil {
		return out, fmt.Errorf("exec in %s: %w", service, err)
	}
	return out, nil
}

// Up builds and starts the service detached. --build picks up a freshly
// built image for the target slot.
func (d *DockerCompose) Up(ctx context.Context, service string) error {
	args := d.composeArgs("up", "-d", "--build", service)
	if _, err := d.run(ctx, args...); err != nil {
		return fmt.Errorf("starting service %s: %w", service, err)
	}
	return nil
}

// Stop stops the service's container.
func (d *DockerCompose) Stop(ctx context.Context, service string) error {
	args := d.composeArgs("stop", service)
	if _, err := d.run(ctx, args...); err != nil {
		return fmt.Errorf("stopping service %s: %w", service, err)
	}
	return nil
}

// Kill delivers a signal to the service's primary process.
func (d *DockerCompose) Kill(ctx context.Context, service string, signal string) error {
	args := d.composeArgs("kill", "-s", signal, service)
	if _, err := d.run(ctx, args...); err != nil {
		return fmt.Errorf("signalling service %s with %s: %w", service, signal, err)
	}
	return nil
}
