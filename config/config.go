// Package config holds the env-driven configuration for the lead validator
// backend, split into domain-specific files:
//   - database.go: Postgres and Redis configuration
//   - services.go: service modes and per-service configuration
//   - verifier.go: verification pipeline and scoring configuration
//   - lists.go: domain/local-part list overrides from a YAML file
package config

// AppConfig is the main application configuration struct, loaded from
// environment variables with github.com/caarlos0/env.
type AppConfig struct {
	// IsDev controls development-mode behavior (text log output).
	IsDev bool `env:"DEV" envDefault:"false"`

	// Postgres and Redis connections.
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Services is the comma-delimited list of enabled service modes.
	Services string `env:"SERVICES" envDefault:"monitor,retention"`

	Jobs      JobsConfig
	Monitor   MonitorConfig
	Verifier  VerifierConfig
	Scoring   ScoringConfig
	Retention RetentionConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// Call after env parsing, before handing the config to services.
func (c *AppConfig) Sanitize() {
	c.Jobs.Sanitize()
	c.Monitor.Sanitize()
	c.Verifier.Sanitize()
	c.Scoring.Sanitize()
	c.Retention.Sanitize()
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsMonitorEnabled returns true if the stall monitor service is enabled.
func (c *AppConfig) IsMonitorEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeMonitor]
}

// IsRetentionEnabled returns true if the retention sweeper service is enabled.
func (c *AppConfig) IsRetentionEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeRetention]
}

// ObservabilityConfig groups metrics settings.
type ObservabilityConfig struct {
	// StatsdAddress is the UDP address of a StatsD-compatible sink.
	// Metrics are disabled when empty.
	StatsdAddress string `env:"METRICS_STATSD_ADDR" envDefault:""`
}

// MetricsEnabled reports whether a metrics sink is configured.
func (o ObservabilityConfig) MetricsEnabled() bool {
	return o.StatsdAddress != ""
}
