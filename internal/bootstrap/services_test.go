package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{name: "no services enabled", want: 0},
		{name: "runner only", modes: []config.ServiceMode{config.ServiceModePipelineRunner}, want: 1},
		{
			name:  "runner and reaper",
			modes: []config.ServiceMode{config.ServiceModePipelineRunner, config.ServiceModeReaper},
			want:  2,
		},
		{name: "all services enabled", modes: config.ValidServiceModes(), want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
			if got := errorChannelBufferSize(enabled); got != tt.want+1 {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want+1)
			}
		})
	}
}

func TestValidateServiceConfig(t *testing.T) {
	configured := config.QualtricsConfig{Domain: "fra1", APIKey: "token", SendSurveyID: "SV_send"}

	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr string
	}{
		{name: "nil config", wantErr: "service config is required"},
		{name: "unknown service", cfg: &config.AppConfig{Services: "http"}, wantErr: "invalid service configuration"},
		{name: "reaper needs no platform", cfg: &config.AppConfig{Services: "reaper,ops-http"}},
		{
			name:    "runner without credentials",
			cfg:     &config.AppConfig{Services: "pipeline-runner", Qualtrics: config.QualtricsConfig{Domain: "fra1"}},
			wantErr: "requires QUALTRICS_DOMAIN",
		},
		{
			name: "runner without send survey",
			cfg: &config.AppConfig{
				Services:  "pipeline-runner",
				Qualtrics: config.QualtricsConfig{Domain: "fra1", APIKey: "token"},
			},
			wantErr: "QUALTRICS_SEND_SURVEY_ID",
		},
		{name: "runner configured", cfg: &config.AppConfig{Services: "pipeline-runner", Qualtrics: configured}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceConfig(tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnabledServicesIsOrdered(t *testing.T) {
	cfg := &config.AppConfig{Services: "ops-http, reaper ,pipeline-runner"}
	assert.Equal(t, []string{"pipeline-runner", "reaper", "ops-http"}, GetEnabledServices(cfg))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: "bogus"}))
	assert.Empty(t, GetEnabledServices(nil))
}

func TestNewPlatformRequiresCredentials(t *testing.T) {
	_, err := NewPlatform(config.QualtricsConfig{Domain: "fra1"}, nil)
	require.Error(t, err)

	gw, err := NewPlatform(config.QualtricsConfig{
		Domain:       "fra1",
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"manage:all"},
		Timeout:      time.Second,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.NotNil(t, gw.Client())
}

func TestWaitForShutdownOnSignal(t *testing.T) {
	quit := make(chan os.Signal, 1)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ctx.Done()
		close(done)
	}()

	quit <- syscall.SIGTERM
	err := waitForShutdown(shutdownConfig{
		cancel:      cancel,
		quit:        quit,
		errCh:       make(chan error),
		logger:      slog.New(slog.DiscardHandler),
		backgrounds: []backgroundServiceHandle{{name: "pipeline runner", done: done}},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestWaitForShutdownReturnsServiceError(t *testing.T) {
	errCh := make(chan error, 1)
	boom := errors.New("reaper failed: connection refused")
	errCh <- boom

	stuck := make(chan struct{})
	start := time.Now()
	err := waitForShutdown(shutdownConfig{
		cancel:      func() {},
		quit:        make(chan os.Signal),
		errCh:       errCh,
		logger:      slog.New(slog.DiscardHandler),
		backgrounds: []backgroundServiceHandle{{name: "reaper", done: stuck}, {name: "ops http", done: stuck}},
		waitTimeout: 50 * time.Millisecond,
	})
	require.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), time.Second, "shutdown wait must be bounded across services")
}
