// Package proxy renders and installs the reverse proxy configuration that
// routes live traffic to one environment, and hot-reloads the proxy process.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"promotectl/internal/config"
	"promotectl/internal/environment"
	"promotectl/pkg/logging"
)

// ReloadError means the new configuration file was committed but the proxy
// reload command failed, so the live process may still serve the previous
// upstream. The committed file is deliberately left in place.
type ReloadError struct {
	Command string
	Err     error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("proxy reload command %q failed: %v", e.Command, e.Err)
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}

// nginxTemplate is the complete proxy configuration, parameterized only by
// the target environment. Routes: root to the app, the websocket prefix with
// upgrade headers, and static assets.
const nginxTemplate = `# Managed by promotectl. Regenerated on every promotion; do not edit.
upstream chat_backend {
    server {{ .ContainerName }}:{{ .AppPort }};
}

server {
    listen 80;

    location / {
        proxy_pass http://chat_backend;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
    }

    location /ws/ {
        proxy_pass http://chat_backend;
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_set_header Host $host;
        proxy_read_timeout 86400s;
    }

    location /static/ {
        proxy_pass http://chat_backend;
        expires 1h;
    }
}
`

// For mocking in tests
var execCommand = exec.CommandContext

// Switcher installs a new upstream configuration and reloads the proxy.
type Switcher struct {
	confPath      string
	reloadCommand []string
	tmpl          *template.Template
}

// NewSwitcher creates a Switcher from the proxy settings.
func NewSwitcher(settings config.ProxySettings) *Switcher {
	return &Switcher{
		confPath:      settings.ConfPath,
		reloadCommand: settings.ReloadCommand,
		tmpl:          template.Must(template.New("nginx").Parse(nginxTemplate)),
	}
}

// Render produces the complete configuration text for an environment.
func (s *Switcher) Render(env environment.Environment) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, env); err != nil {
		return "", fmt.Errorf("rendering proxy config: %w", err)
	}
	return buf.String(), nil
}

// Switch renders the configuration for the target environment, atomically
// replaces the live config file, and hot-reloads the proxy. The temp file is
// created in the destination directory so the rename stays on one
// filesystem; a reader of the live path can never observe a partial file.
// There is no retry: a reload failure surfaces as ReloadError with the
// committed file left as-is.
func (s *Switcher) Switch(ctx context.Context, env environment.Environment) error {
	content, err := s.Render(env)
	if err != nil {
		return err
	}

	if err := s.install(content); err != nil {
		return err
	}
	logging.Info("TrafficSwitch", "Installed proxy config routing to %s:%d at %s", env.ContainerName, env.AppPort, s.confPath)

	if err := s.reload(ctx); err != nil {
		return err
	}
	logging.Info("TrafficSwitch", "Proxy reloaded, traffic now flows to %s", env.Color)
	return nil
}

func (s *Switcher) install(content string) error {
	dir := filepath.Dir(s.confPath)

	tmp, err := os.CreateTemp(dir, ".promote-*.conf")
	if err != nil {
		return fmt.Errorf("creating temp config in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp config: %w", err)
	}

	if err := os.Rename(tmpName, s.confPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("installing config at %s: %w", s.confPath, err)
	}
	return nil
}

func (s *Switcher) reload(ctx context.Context) error {
	if len(s.reloadCommand) == 0 {
		return &ReloadError{Err: errors.New("no reload command configured")}
	}

	name := s.reloadCommand[0]
	args := s.reloadCommand[1:]

	cmd := execCommand(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return &ReloadError{Command: strings.Join(s.reloadCommand, " "), Err: err}
	}
	return nil
}
