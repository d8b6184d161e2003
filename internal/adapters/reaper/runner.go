// Package reaper runs the step queue reaper as a service.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/config"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/data"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/metrics"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/statsd"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service"
)

// Runner wires a ReaperService and runs its loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo     core.ReaperRepository
	Queue    service.QueueStatser
	Metrics  statsd.Sink
	Recorder *metrics.Recorder
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	reaper, err := wireReaperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

func wireReaperService(opts RunnerOptions) (*service.ReaperService, error) {
	repo, queue := opts.Repo, opts.Queue
	if opts.DB != nil && (repo == nil || queue == nil) {
		// The job repository serves both the sweeps and the queue statistics.
		jobRepo := data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
		if repo == nil {
			repo = jobRepo
		}
		if queue == nil {
			queue = jobRepo
		}
	}

	return service.NewReaperService(service.ReaperServiceOptions{
		Repo:     repo,
		Config:   opts.Config,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
		Queue:    queue,
		Recorder: opts.Recorder,
	})
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}
