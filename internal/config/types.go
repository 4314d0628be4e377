package config

// Config is the top-level configuration for promotectl. It is assembled once
// at startup (defaults, then optional YAML file, then environment overrides)
// and passed explicitly to the stage constructors; nothing reads environment
// variables after this point.
type Config struct {
	// Compose controls how the container runtime control plane is reached.
	Compose ComposeSettings `yaml:"compose"`

	// Environments fixes the two deployment slots.
	Environments EnvironmentSettings `yaml:"environments"`

	// Health controls the readiness gate for the target environment.
	Health HealthSettings `yaml:"health"`

	// Smoke controls the post-start smoke test battery.
	Smoke SmokeSettings `yaml:"smoke"`

	// Proxy controls the reverse proxy configuration artifact and reload.
	Proxy ProxySettings `yaml:"proxy"`

	// Drain controls graceful shutdown of the previously active environment.
	Drain DrainSettings `yaml:"drain"`
}

// ComposeSettings identifies the compose project the two environments live in.
type ComposeSettings struct {
	File    string `yaml:"file,omitempty"`    // Compose file path, e.g. "docker-compose.yml"
	Project string `yaml:"project,omitempty"` // Compose project name, e.g. "chat"
}

// EnvironmentSettings fixes ports and naming for the blue and green slots.
// Container names are derived from ContainerPrefix plus the color; compose
// service names are "app-<color>".
type EnvironmentSettings struct {
	ContainerPrefix string `yaml:"containerPrefix,omitempty"` // e.g. "chat-app" -> "chat-app-blue"
	BluePort        int    `yaml:"bluePort,omitempty"`        // Host port published by the blue slot
	GreenPort       int    `yaml:"greenPort,omitempty"`       // Host port published by the green slot
	AppPort         int    `yaml:"appPort,omitempty"`         // Port the app listens on inside its container
}

// HealthSettings controls the health/readiness polling loop.
type HealthSettings struct {
	Retries int      `yaml:"retries,omitempty"` // Attempts before giving up
	Delay   Duration `yaml:"delay,omitempty"`   // Fixed sleep between failed attempts, no backoff
}

// SmokeSettings controls the smoke test runner.
type SmokeSettings struct {
	Timeout Duration `yaml:"timeout,omitempty"` // Overall deadline for the whole battery
}

// ProxySettings controls the traffic switch.
type ProxySettings struct {
	ConfPath      string   `yaml:"confPath,omitempty"`      // Live nginx config path, replaced atomically
	ReloadCommand []string `yaml:"reloadCommand,omitempty"` // Command that hot-reloads the proxy
}

// DrainSettings controls the drain of the old environment.
type DrainSettings struct {
	MaxWait Duration `yaml:"maxWait,omitempty"` // Budget for graceful exit before force-stop
}
