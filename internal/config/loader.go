package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osLookupEnv = os.LookupEnv
var osReadFile = os.ReadFile

const configFileEnv = "PROMOTECTL_CONFIG"
const projectConfigFile = ".promotectl.yaml"

// Environment variable names recognized by Load. These are the knobs the
// deploy automation sets; everything else comes from the YAML file or the
// built-in defaults.
const (
	EnvHealthCheckRetries = "HEALTH_CHECK_RETRIES"
	EnvHealthCheckDelay   = "HEALTH_CHECK_DELAY"
	EnvSmokeTestTimeout   = "SMOKE_TEST_TIMEOUT"
	EnvDrainMaxWait       = "DRAIN_MAX_WAIT"
	EnvNginxConfPath      = "NGINX_CONF_PATH"
	EnvComposeFile        = "COMPOSE_FILE"
	EnvComposeProject     = "COMPOSE_PROJECT"
	EnvContainerPrefix    = "CONTAINER_PREFIX"
	EnvBluePort           = "BLUE_PORT"
	EnvGreenPort          = "GREEN_PORT"
)

// Load assembles the effective configuration by layering, in order:
// built-in defaults, an optional YAML config file, and environment variable
// overrides. The file path is taken from PROMOTECTL_CONFIG if set, otherwise
// ".promotectl.yaml" in the working directory (optional in both cases).
func Load() (Config, error) {
	cfg := GetDefaultConfig()

	path := projectConfigFile
	explicit := false
	if p, ok := osLookupEnv(configFileEnv); ok && p != "" {
		path = p
		explicit = true
	}

	data, err := osReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No project config file is fine; defaults plus env apply.
	default:
		return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, cfg.validate()
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := osLookupEnv(EnvHealthCheckRetries); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHealthCheckRetries, v, err)
		}
		cfg.Health.Retries = n
	}
	if v, ok := osLookupEnv(EnvHealthCheckDelay); ok {
		d, err := parseDurationOrSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvHealthCheckDelay, v, err)
		}
		cfg.Health.Delay = Duration(d)
	}
	if v, ok := osLookupEnv(EnvSmokeTestTimeout); ok {
		d, err := parseDurationOrSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvSmokeTestTimeout, v, err)
		}
		cfg.Smoke.Timeout = Duration(d)
	}
	if v, ok := osLookupEnv(EnvDrainMaxWait); ok {
		d, err := parseDurationOrSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvDrainMaxWait, v, err)
		}
		cfg.Drain.MaxWait = Duration(d)
	}
	if v, ok := osLookupEnv(EnvNginxConfPath); ok {
		cfg.Proxy.ConfPath = v
	}
	if v, ok := osLookupEnv(EnvComposeFile); ok {
		cfg.Compose.File = v
	}
	if v, ok := osLookupEnv(EnvComposeProject); ok {
		cfg.Compose.Project = v
	}
	if v, ok := osLookupEnv(EnvContainerPrefix); ok {
		cfg.Environments.ContainerPrefix = v
	}
	if v, ok := osLookupEnv(EnvBluePort); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvBluePort, v, err)
		}
		cfg.Environments.BluePort = p
	}
	if v, ok := osLookupEnv(EnvGreenPort); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvGreenPort, v, err)
		}
		cfg.Environments.GreenPort = p
	}
	return nil
}

// parseDurationOrSeconds accepts either a Go duration string ("2s", "1m30s")
// or a bare integer meaning seconds, which is what shell-driven deploy
// scripts tend to export.
func parseDurationOrSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %d", n)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

func (c Config) validate() error {
	if c.Health.Retries < 1 {
		return fmt.Errorf("health retries must be at least 1, got %d", c.Health.Retries)
	}
	if c.Environments.BluePort == c.Environments.GreenPort {
		return fmt.Errorf("blue and green ports must differ, both are %d", c.Environments.BluePort)
	}
	if c.Environments.ContainerPrefix == "" {
		return fmt.Errorf("container prefix must not be empty")
	}
	if c.Proxy.ConfPath == "" {
		return fmt.Errorf("proxy config path must not be empty")
	}
	if len(c.Proxy.ReloadCommand) == 0 {
		return fmt.Errorf("proxy reload command must not be empty")
	}
	return nil
}
