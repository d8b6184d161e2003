package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/config"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/adapters/jobrunner"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/adapters/reaper"
	httpx "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/http"
	"github.com/redis/go-redis/v9"
)

const shutdownWaitTimeout = 30 * time.Second

// ServiceOrchestrationConfig carries everything the runtime needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	// Signals overrides the shutdown signal source; nil listens for SIGINT and SIGTERM.
	Signals <-chan os.Signal
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{mode: svc.mode, name: svc.name, done: done})
	}

	return handles
}

func newPipelineRunnerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModePipelineRunner,
		name: "pipeline runner",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
				Jobs:        svc.Jobs,
				Steps:       svc.Orchestrator,
				Logger:      deps.logger,
				Lease:       deps.cfg.Config.PipelineRunner.JobLease,
				Concurrency: deps.cfg.Config.PipelineRunner.Concurrency,
				Recorder:    svc.Observability.Recorder,
			})
			if err != nil {
				return fmt.Errorf("create pipeline runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			svc := deps.cfg.Services
			opts := reaper.RunnerOptions{
				DB:       deps.cfg.DB,
				Config:   deps.cfg.Config.Reaper,
				Logger:   deps.logger,
				Metrics:  svc.Observability.MetricsSink,
				Recorder: svc.Observability.Recorder,
			}
			if svc.Repos != nil && svc.Repos.Jobs != nil {
				opts.Repo = svc.Repos.Jobs
				opts.Queue = svc.Repos.Jobs
			}
			runner, err := reaper.NewRunner(opts)
			if err != nil {
				return fmt.Errorf("create reaper: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newOpsHTTPBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeOpsHTTP,
		name: "ops http",
		start: func(ctx context.Context) error {
			cfg := deps.cfg.Config.OpsHTTP
			server := httpx.NewOpsServer(httpx.OpsOptions{
				Addr:              cfg.Addr,
				ReadHeaderTimeout: cfg.ReadHeaderTimeout,
				Logger:            deps.logger,
				Checks:            readinessChecks(deps.cfg),
				Gatherer:          deps.cfg.Services.Observability.Registry,
			})
			return server.Run(ctx)
		},
	}
}

// readinessChecks pings the stores the process depends on.
func readinessChecks(cfg *ServiceOrchestrationConfig) []httpx.ReadinessCheck {
	var checks []httpx.ReadinessCheck
	if cfg.DB != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "postgres", Ping: cfg.DB.PingContext})
	}
	switch {
	case cfg.Services.Repos != nil && cfg.Services.Repos.Cache != nil:
		checks = append(checks, httpx.ReadinessCheck{Name: "redis", Ping: cfg.Services.Repos.Cache.Health})
	case cfg.RedisClient != nil:
		client := cfg.RedisClient
		checks = append(checks, httpx.ReadinessCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
	return checks
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newPipelineRunnerBackgroundService(deps),
		newReaperBackgroundService(deps),
		newOpsHTTPBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// It blocks until a shutdown signal arrives or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	if enabledServices[config.ServiceModePipelineRunner] && cfg.Services.Jobs == nil {
		return errors.New("pipeline runner enabled without a job service")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, errorChannelBufferSize(enabledServices))
	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	quit := cfg.Signals
	if quit == nil {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)
		quit = sig
	}

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		quit:        quit,
		errCh:       errCh,
		cfg:         cfg,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	quit        <-chan os.Signal
	errCh       <-chan error
	cfg         *ServiceOrchestrationConfig
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
	waitTimeout time.Duration
}

// waitForShutdown waits for a shutdown signal or a service error.
func waitForShutdown(cfg shutdownConfig) error {
	select {
	case sig := <-cfg.quit:
		cfg.logger.Info("shutting down services", "signal", fmt.Sprint(sig))
		cfg.cancel()
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop releases queue listeners and waits, bounded, for every
// background service to return.
func gracefulStop(cfg shutdownConfig) {
	if cfg.cfg != nil && cfg.cfg.Services.Jobs != nil {
		cfg.cfg.Services.Jobs.StopAllListeners()
	}

	timeout := cfg.waitTimeout
	if timeout <= 0 {
		timeout = shutdownWaitTimeout
	}
	deadline := time.After(timeout)
	for _, svc := range cfg.backgrounds {
		if !waitForService(svc.done, svc.name, cfg.logger, deadline) {
			return
		}
	}
}

// waitForService reports false once the shared deadline has passed.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger, deadline <-chan time.Time) bool {
	if done == nil {
		return true
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
		return true
	case <-deadline:
		logger.Warn("timeout waiting for " + name + " to stop")
		return false
	}
}
