package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service",
			input:    "pipeline-runner",
			expected: map[ServiceMode]bool{ServiceModePipelineRunner: true},
		},
		{
			name:  "all services with spaces",
			input: " pipeline-runner , reaper , ops-http ",
			expected: map[ServiceMode]bool{
				ServiceModePipelineRunner: true,
				ServiceModeReaper:         true,
				ServiceModeOpsHTTP:        true,
			},
		},
		{
			name:     "duplicate services",
			input:    "reaper,reaper",
			expected: map[ServiceMode]bool{ServiceModeReaper: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: ",,", expectError: true},
		{name: "unknown service", input: "reaper,http", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for input %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("ParseServices(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsPipelineRunnerEnabled() || !cfg.IsReaperEnabled() {
		t.Errorf("expected pipeline-runner and reaper enabled by default, got %q", cfg.Services)
	}
	if cfg.IsOpsHTTPEnabled() {
		t.Error("expected ops-http disabled by default")
	}
	if cfg.Cache.CatalogTTL != 5*time.Minute {
		t.Errorf("catalog ttl = %v, want 5m", cfg.Cache.CatalogTTL)
	}
	if cfg.PipelineRunner.JobLease != 2*time.Minute {
		t.Errorf("job lease = %v, want 2m", cfg.PipelineRunner.JobLease)
	}
	if cfg.Qualtrics.Timeout != 30*time.Second {
		t.Errorf("qualtrics timeout = %v, want 30s", cfg.Qualtrics.Timeout)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.SlogLevel())
	}
}

func TestAppConfig_ParseQualtricsEnv(t *testing.T) {
	t.Setenv("QUALTRICS_DOMAIN", " fra1 ")
	t.Setenv("QUALTRICS_API_KEY", "token")
	t.Setenv("QUALTRICS_DIRECTORY_ID", "POOL_1")
	t.Setenv("QUALTRICS_LIBRARY_ID", "UR_1")
	t.Setenv("QUALTRICS_SEND_SURVEY_ID", "SV_send")
	t.Setenv("QUALTRICS_SCOPES", "read:users,manage:all")
	t.Setenv("LOG_LEVEL", "DEBUG")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	expected := QualtricsConfig{
		Domain:       "fra1",
		APIKey:       "token",
		DirectoryID:  "POOL_1",
		LibraryID:    "UR_1",
		SendSurveyID: "SV_send",
		Scopes:       []string{"read:users", "manage:all"},
		Timeout:      30 * time.Second,
	}
	if !reflect.DeepEqual(cfg.Qualtrics, expected) {
		t.Fatalf("unexpected qualtrics configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Qualtrics)
	}
	if !cfg.Qualtrics.Configured() || cfg.Qualtrics.UsesOAuth() {
		t.Error("expected a token-authenticated configuration")
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.SlogLevel())
	}
}

func TestAppConfig_ParseNestedPrefixes(t *testing.T) {
	t.Setenv("PIPELINE_RUNNER_CONCURRENCY", "0")
	t.Setenv("REAPER_INTERVAL", "10s")
	t.Setenv("OBSERVABILITY_NOTIFICATIONS_ENABLED", "true")
	t.Setenv("OBSERVABILITY_NOTIFICATIONS_SLACK_ENABLED", "true")
	t.Setenv("OBSERVABILITY_NOTIFICATIONS_SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/test")
	t.Setenv("CACHE_KEY_PREFIX", "wave3:")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.PipelineRunner.Concurrency != 1 {
		t.Errorf("concurrency = %d, want clamped to 1", cfg.PipelineRunner.Concurrency)
	}
	if cfg.Reaper.Interval != time.Minute {
		t.Errorf("reaper interval = %v, want clamped to 1m", cfg.Reaper.Interval)
	}
	if !cfg.Observability.Notifications.Slack.Enabled {
		t.Error("expected slack notifications enabled")
	}
	if cfg.Cache.KeyPrefix != "wave3:" {
		t.Errorf("cache prefix = %q", cfg.Cache.KeyPrefix)
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{ServiceModePipelineRunner, ServiceModeReaper, ServiceModeOpsHTTP}
	if !reflect.DeepEqual(modes, expected) {
		t.Errorf("ValidServiceModes() = %v, want %v", modes, expected)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " "}
	cfg.Sanitize()
	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " statsd:1234 "}
	cfg.Sanitize()
	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackNotificationConfig{Enabled: true, WebhookURL: " "},
		PagerDuty:  PagerDutyNotificationConfig{Enabled: true, RoutingKey: " "},
	}
	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit != 0 {
		t.Fatalf("expected retry limit to be clamped to 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks without credentials to be disabled")
	}
	if cfg.PagerDuty.Source != "distributor" || cfg.Slack.Username != "distributor" {
		t.Fatalf("expected defaults, got source=%q username=%q", cfg.PagerDuty.Source, cfg.Slack.Username)
	}

	cfg = ObservabilityNotificationsConfig{
		Enabled:   false,
		Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/test"},
		PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "abc"},
	}
	cfg.Sanitize()
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks to be disabled when top-level notifications disabled")
	}
}
