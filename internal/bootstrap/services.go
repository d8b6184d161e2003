package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/config"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/data"
	domainjob "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/job"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/metrics"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/notify/pagerduty"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/notify/slack"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/statsd"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service/failurenotifier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// stepWakeWindow bounds how long an idle worker waits before looking for
// delayed or retried steps whose run time has come.
const stepWakeWindow = 5 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Distributions *service.DistributionService
	Orchestrator  *service.Orchestrator
	Lookup        *service.LookupService
	Platform      *qualtrics.Gateway
	Observability ObservabilityContainer
	Repos         *Repositories
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is statsd.Discard when StatsD is disabled.
	MetricsSink     statsd.Sink
	MetricsConfig   config.ObservabilityMetricsConfig
	Registry        *prometheus.Registry
	Recorder        *metrics.Recorder
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig

	statsd *statsd.Client
}

// Close releases the StatsD connection, if any.
func (o ObservabilityContainer) Close() error {
	if o.statsd == nil {
		return nil
	}
	return o.statsd.Close()
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// Repositories groups data adapters backing service ports.
type Repositories struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Jobs     *data.JobRepo
	Links    *data.LinkDistributionRepo
	Messages *data.MessageDistributionRepo
	Profiles *data.ProfileRepo
	// Cache is nil when Redis is absent or caching is disabled.
	Cache *data.RedisCacheRepo
}

// NewObservability configures the StatsD sink, the Prometheus registry with
// the step recorder, and the failure notifier.
func NewObservability(logger *slog.Logger, cfg config.ObservabilityConfig) (ObservabilityContainer, error) {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{
		MetricsSink:    statsd.Discard{},
		MetricsConfig:  cfg.Metrics,
		NotifierConfig: cfg.Notifications,
	}

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  statsd.DefaultPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.MetricsSink = client
			out.statsd = client
		}
	}

	out.Registry = prometheus.NewRegistry()
	out.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(out.MetricsSink, out.Registry)
	if err != nil {
		return out, fmt.Errorf("register step metrics: %w", err)
	}
	out.Recorder = recorder

	out.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications)
	return out, nil
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps) *Repositories {
	repos := &Repositories{
		DB:       deps.DB,
		Redis:    deps.RedisClient,
		Jobs:     data.NewJobRepo(deps.DB, data.RepoConfig{Logger: deps.Logger}),
		Links:    data.NewLinkDistributionRepo(deps.DB),
		Messages: data.NewMessageDistributionRepo(deps.DB),
		Profiles: data.NewProfileRepo(deps.DB),
	}
	if deps.RedisClient != nil && deps.Config.Cache.Enabled {
		repos.Cache = data.NewRedisCacheRepo(deps.RedisClient)
	}
	return repos
}

// cacheRepository keeps a nil *RedisCacheRepo from becoming a non-nil interface.
//
//nolint:ireturn // the lookup service takes the port, not the adapter.
func (r *Repositories) cacheRepository() core.CacheRepository {
	if r.Cache == nil {
		return nil
	}
	return r.Cache
}

// NewPlatform builds the Qualtrics client and gateway from configuration.
func NewPlatform(cfg config.QualtricsConfig, logger *slog.Logger) (*qualtrics.Gateway, error) {
	if !cfg.Configured() {
		return nil, errors.New("qualtrics is not configured")
	}
	qcfg := qualtrics.Config{
		Domain:      cfg.Domain,
		BaseURL:     cfg.BaseURL,
		DirectoryID: cfg.DirectoryID,
		LibraryID:   cfg.LibraryID,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	}
	if cfg.UsesOAuth() {
		qcfg.OAuth = &qualtrics.OAuthConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			TokenURL:     cfg.TokenURL,
		}
	} else {
		qcfg.APIKey = cfg.APIKey
	}

	client, err := qualtrics.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("create qualtrics client: %w", err)
	}
	return qualtrics.NewGateway(client), nil
}

// NewServices builds the service graph: platform gateway, repositories,
// lookup cache, pipeline orchestrator, distribution management and the step
// queue.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	platform, err := NewPlatform(cfg.Qualtrics, logger)
	if err != nil {
		return ServiceContainer{}, err
	}
	observability, err := NewObservability(logger, cfg.Observability)
	if err != nil {
		return ServiceContainer{}, err
	}
	repos := buildRepositories(deps)

	lookup, err := service.NewLookupService(service.LookupServiceOptions{
		Platform:   platform,
		Cache:      repos.cacheRepository(),
		CatalogTTL: cfg.Cache.CatalogTTL,
		ReportTTL:  cfg.Cache.ReportTTL,
		KeyPrefix:  cfg.Cache.KeyPrefix,
		Logger:     logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create lookup service: %w", err)
	}

	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Links:        repos.Links,
		Messages:     repos.Messages,
		Platform:     platform,
		SendSurveyID: cfg.Qualtrics.SendSurveyID,
		Header: service.EmailHeader{
			FromEmail: cfg.Qualtrics.FromEmail,
			FromName:  cfg.Qualtrics.FromName,
			ReplyTo:   cfg.Qualtrics.ReplyTo,
		},
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create orchestrator: %w", err)
	}

	distributions, err := service.NewDistributionService(service.DistributionServiceOptions{
		Links:        repos.Links,
		Messages:     repos.Messages,
		Profiles:     repos.Profiles,
		Jobs:         repos.Jobs,
		States:       orchestrator,
		Lookup:       lookup,
		Platform:     platform,
		SendSurveyID: cfg.Qualtrics.SendSurveyID,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create distribution service: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:            repos.Jobs,
		DefaultLease:    cfg.PipelineRunner.JobLease,
		Logger:          logger,
		FailureNotifier: observability.FailureNotifier,
		Describer:       distributions,
		NotifierOptions: domainjob.NotifierOptions{WaitWindow: stepWakeWindow},
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Distributions: distributions,
		Orchestrator:  orchestrator,
		Lookup:        lookup,
		Platform:      platform,
		Observability: observability,
		Repos:         repos,
	}, nil
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:     cfg.Slack.WebhookURL,
			Channel:        cfg.Slack.Channel,
			Username:       cfg.Slack.Username,
			Timeout:        cfg.Timeout,
			RetryLimit:     cfg.RetryLimit,
			AdminURLPrefix: cfg.Slack.AdminURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}
