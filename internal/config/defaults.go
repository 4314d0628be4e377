package config

import "time"

// Defaults for the promotion pipeline. Ports and naming follow the compose
// topology: the blue slot publishes 8001, the green slot 8002, and the app
// listens on 8000 inside its container behind the proxy.
const (
	DefaultComposeFile     = "docker-compose.yml"
	DefaultComposeProject  = "chat"
	DefaultContainerPrefix = "chat-app"
	DefaultBluePort        = 8001
	DefaultGreenPort       = 8002
	DefaultAppPort         = 8000

	DefaultHealthRetries = 30
	DefaultHealthDelay   = 2 * time.Second
	DefaultSmokeTimeout  = 60 * time.Second
	DefaultDrainMaxWait  = 30 * time.Second

	DefaultNginxConfPath = "nginx/conf.d/default.conf"
)

// GetDefaultConfig returns the built-in configuration, before any file or
// environment overrides are applied.
func GetDefaultConfig() Config {
	return Config{
		Compose: ComposeSettings{
			File:    DefaultComposeFile,
			Project: DefaultComposeProject,
		},
		Environments: EnvironmentSettings{
			ContainerPrefix: DefaultContainerPrefix,
			BluePort:        DefaultBluePort,
			GreenPort:       DefaultGreenPort,
			AppPort:         DefaultAppPort,
		},
		Health: HealthSettings{
			Retries: DefaultHealthRetries,
			Delay:   Duration(DefaultHealthDelay),
		},
		Smoke: SmokeSettings{
			Timeout: Duration(DefaultSmokeTimeout),
		},
		Proxy: ProxySettings{
			ConfPath:      DefaultNginxConfPath,
			ReloadCommand: []string{"docker", "compose", "exec", "-T", "proxy", "nginx", "-s", "reload"},
		},
		Drain: DrainSettings{
			MaxWait: Duration(DefaultDrainMaxWait),
		},
	}
}
