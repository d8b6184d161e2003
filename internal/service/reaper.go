package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/config"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	obserrors "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/errors"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/metrics"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/statsd"
)

// QueueStatser reports job counts per status for one queue.
type QueueStatser interface {
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo     core.ReaperRepository // Required: reaper repository
	Config   config.ReaperConfig   // Required: reaper configuration
	Logger   *slog.Logger          // Optional: structured logger
	Metrics  statsd.Sink           // Optional: metrics sink (StatsD-compatible)
	Queue    QueueStatser          // Optional: publishes queue depth each tick
	Recorder *metrics.Recorder     // Optional: receives queue depth
}

// ReaperService keeps the step queue healthy. Each tick it fails pending
// steps nobody picked up in time (their pipelines are stalled and must be
// resumed by an operator), deletes old completed and failed steps, and
// publishes queue depth.
type ReaperService struct {
	repo     core.ReaperRepository
	config   config.ReaperConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	queue    QueueStatser
	recorder *metrics.Recorder
}

// sweep is one batched cleanup operation.
type sweep struct {
	operation string
	maxAge    time.Duration
	batch     func(ctx context.Context) (int64, error)
}

type sweepOutcome struct {
	operation string
	count     int64
	err       error
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"pending_max_age", opts.Config.PendingMaxAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
		)
	}

	return &ReaperService{
		repo:     opts.Repo,
		config:   opts.Config,
		logger:   logger,
		metrics:  opts.Metrics,
		queue:    opts.Queue,
		recorder: opts.Recorder,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReaperService: %v", err))
	}
	return svc
}

// Run sweeps at the configured interval until ctx ends. It returns nil on
// cancellation and ctx.Err() on deadline.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Several instances started together should not sweep in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if err := s.runCleanup(ctx); err != nil {
			s.logCleanupError(err)
		}

		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// waitWithJitter sleeps a random delay of up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func (s *ReaperService) sweeps() []sweep {
	deleteOld := func(status model.JobStatus, maxAge time.Duration) func(context.Context) (int64, error) {
		return func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		}
	}
	return []sweep{
		{
			operation: "fail_pending",
			maxAge:    s.config.PendingMaxAge,
			batch: func(ctx context.Context) (int64, error) {
				return s.repo.FailStalePendingJobs(ctx, s.config.PendingMaxAge, s.config.BatchSize)
			},
		},
		{operation: "delete_completed", maxAge: s.config.CompletedMaxAge, batch: deleteOld(model.JobStatusCompleted, s.config.CompletedMaxAge)},
		{operation: "delete_failed", maxAge: s.config.FailedMaxAge, batch: deleteOld(model.JobStatusFailed, s.config.FailedMaxAge)},
	}
}

// runCleanup runs every sweep, then publishes queue depth. A failing sweep
// does not stop the others.
func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()
	outcomes := make([]sweepOutcome, 0, 3)
	var errs []error

	for _, sw := range s.sweeps() {
		count, err := s.drain(ctx, sw)
		outcomes = append(outcomes, sweepOutcome{operation: sw.operation, count: count, err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sw.operation, err))
		}
	}

	s.publishQueueDepth(ctx)
	s.emitCleanupMetrics(outcomes, time.Since(start))

	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	if ctx.Err() != nil && isContextCancellation(joined) {
		return context.Canceled
	}
	return fmt.Errorf("cleanup failed: %w", joined)
}

// drain repeats one sweep batch until it affects no rows.
func (s *ReaperService) drain(ctx context.Context, sw sweep) (int64, error) {
	var total int64
	for {
		count, err := sw.batch(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}

	if total > 0 && s.logger != nil {
		level := slog.LevelInfo
		msg := "reaper sweep"
		if sw.operation == "fail_pending" {
			// Each of these left a distribution pipeline half-way.
			level = slog.LevelWarn
			msg = "failed stale pipeline steps; affected distributions need a resume"
		}
		s.logger.Log(ctx, level, msg, "operation", sw.operation, "count", total, "max_age", sw.maxAge)
	}
	return total, nil
}

func (s *ReaperService) publishQueueDepth(ctx context.Context) {
	if s.queue == nil || s.recorder == nil {
		return
	}
	for _, jobType := range model.JobTypes {
		stats, err := s.queue.Stats(ctx, jobType)
		if err != nil {
			if s.logger != nil && !isContextCancellation(err) {
				s.logger.WarnContext(ctx, "queue stats", "job_type", jobType, "error", err)
			}
			continue
		}
		s.recorder.QueueDepth(string(jobType), map[string]int{
			string(model.JobStatusPending):   stats.Pending,
			string(model.JobStatusRunning):   stats.Running,
			string(model.JobStatusCompleted): stats.Completed,
			string(model.JobStatusFailed):    stats.Failed,
		})
	}
}

func (s *ReaperService) emitCleanupMetrics(outcomes []sweepOutcome, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var (
		total    int64
		firstErr error
	)
	for _, o := range outcomes {
		total += o.count
		err := suppressContextCancellation(o.err)
		if firstErr == nil {
			firstErr = err
		}
		s.metrics.Count("reaper.cleanup_operation", 1, sweepTags(o.operation, o.count, err))
		if err == nil && o.count > 0 {
			s.metrics.Count("reaper.jobs_processed", o.count, sweepTags(o.operation, o.count, nil))
		}
	}

	tags := sweepTags("", total, firstErr)
	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func sweepTags(operation string, count int64, err error) map[string]string {
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case count == 0:
		result = metrics.ResultNoop
	}
	tags := map[string]string{"result": result}
	if operation != "" {
		tags["operation"] = operation
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
	return tags
}

func (s *ReaperService) logCleanupError(err error) {
	if s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug("cleanup cancelled by context", "error", err)
		return
	}
	s.logger.Error("cleanup failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
