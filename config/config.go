// Package config holds the process configuration loaded from the environment.
package config

import (
	"log/slog"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and cache configuration
//   - qualtrics.go: Remote platform credentials and scopes
//   - services.go: Service mode, runner and reaper configuration
//   - observability.go: Metrics, ops endpoint and failure notifications
type AppConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig `envPrefix:"CACHE_"`

	Qualtrics QualtricsConfig `envPrefix:"QUALTRICS_"`

	// Services is a comma-delimited list of enabled services.
	Services string `env:"SERVICES" envDefault:"pipeline-runner,reaper"`

	PipelineRunner PipelineRunnerConfig `envPrefix:"PIPELINE_RUNNER_"`
	Reaper         ReaperConfig         `envPrefix:"REAPER_"`
	OpsHTTP        OpsHTTPConfig        `envPrefix:"OPS_HTTP_"`

	Observability ObservabilityConfig `envPrefix:"OBSERVABILITY_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Cache.Sanitize()
	c.Qualtrics.Sanitize()
	c.PipelineRunner.Sanitize()
	c.Reaper.Sanitize()
	c.OpsHTTP.Sanitize()
	c.Observability.Sanitize()
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) enabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsPipelineRunnerEnabled returns true if the pipeline runner service is enabled.
func (c *AppConfig) IsPipelineRunnerEnabled() bool { return c.enabled(ServiceModePipelineRunner) }

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool { return c.enabled(ServiceModeReaper) }

// IsOpsHTTPEnabled returns true if the ops HTTP endpoint is enabled.
func (c *AppConfig) IsOpsHTTPEnabled() bool { return c.enabled(ServiceModeOpsHTTP) }
