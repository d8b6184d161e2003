// Package jobrunner runs distribution pipeline steps off the job queue.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	obserrors "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/errors"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/metrics"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/poll"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLease       = 2 * time.Minute
	componentLabel     = "pipeline_runner"
	enqueueRetryBudget = 3
)

// StepRunner executes one pipeline step.
type StepRunner interface {
	RunStep(ctx context.Context, p pipeline.Payload) error
}

// RunnerOptions configures the pipeline runner.
type RunnerOptions struct {
	Jobs  *service.JobService // Required: step queue
	Steps StepRunner          // Required: usually *service.Orchestrator

	Logger *slog.Logger

	// Job processing settings
	Lease       time.Duration   // per-step lease; defaults to 2m
	Concurrency int             // workers per pipeline kind; defaults to 1
	Kinds       []pipeline.Kind // pipelines to serve; defaults to all

	Recorder *metrics.Recorder
	Now      func() time.Time
}

// Runner reserves step jobs, runs them and chains each pipeline forward: a
// step that succeeds enqueues the next one, a step that fails is retried per
// its policy or failed for good.
type Runner struct {
	jobs     *service.JobService
	steps    StepRunner
	logger   *slog.Logger
	lease    time.Duration
	workers  int
	kinds    []pipeline.Kind
	recorder *metrics.Recorder
	now      func() time.Time
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}
	if opts.Steps == nil {
		return nil, errors.New("StepRunner is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lease := opts.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []pipeline.Kind{pipeline.KindLink, pipeline.KindMessage}
	}
	for _, k := range kinds {
		if _, err := pipeline.For(k); err != nil {
			return nil, err
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Runner{
		jobs:     opts.Jobs,
		steps:    opts.Steps,
		logger:   logger.With("component", componentLabel),
		lease:    lease,
		workers:  workers,
		kinds:    kinds,
		recorder: opts.Recorder,
		now:      now,
	}, nil
}

// Run starts the workers of every served kind and blocks until ctx is
// cancelled or a worker hits a queue error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting pipeline runner", "kinds", r.kinds, "workers", r.workers, "lease", r.lease)

	group, gctx := errgroup.WithContext(ctx)
	for _, kind := range r.kinds {
		for range r.workers {
			group.Go(func() error { return r.workerLoop(gctx, kind) })
		}
	}
	err := group.Wait()
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Runner) workerLoop(ctx context.Context, kind pipeline.Kind) error {
	jobType := kind.JobType()
	unsub, ch := r.jobs.Subscribe(jobType)
	defer unsub()

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, jobType, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !waitForNotify(ctx, ch) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		default:
			r.logger.ErrorContext(ctx, "reserve next step", "job_type", jobType, "error", err)
			return fmt.Errorf("reserve next %s: %w", jobType, err)
		}
	}
	return nil
}

func waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case _, ok := <-notify:
		return ok
	}
}

// stepRun carries one reserved job through its outcome.
type stepRun struct {
	job     *model.Job
	payload pipeline.Payload
	def     pipeline.Definition
	step    pipeline.Step
	start   time.Time
	log     *slog.Logger
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	run := &stepRun{job: job, start: r.now(), log: r.logger.With("job_id", job.ID)}

	if err := r.resolve(run); err != nil {
		// A payload we cannot route is never going to succeed.
		run.log.ErrorContext(ctx, "unroutable step job", "error", err)
		r.fail(ctx, run, err, nil)
		return
	}
	run.log = run.log.With(
		"kind", run.payload.Kind,
		"distribution_id", run.payload.DistributionID,
		"step", run.payload.Step,
		"attempt", job.RetryCount+1,
	)
	run.log.InfoContext(ctx, "running pipeline step")

	stopHB := r.startHeartbeat(ctx, job.ID)
	stack, err := r.runStep(ctx, run.payload)
	stopHB()

	if err != nil {
		r.handleStepError(ctx, run, err, stack)
		return
	}
	r.advance(ctx, run)
}

func (r *Runner) resolve(run *stepRun) error {
	p, err := pipeline.DecodePayload(run.job.Payload)
	if err != nil {
		return err
	}
	def, err := pipeline.For(p.Kind)
	if err != nil {
		return err
	}
	step, ok := def.Step(p.Step)
	if !ok {
		return fmt.Errorf("%s pipeline has no step %q", p.Kind, p.Step)
	}
	run.payload, run.def, run.step = p, def, step
	return nil
}

// runStep executes the step, turning a panic into an error plus the stack
// of the panicking goroutine.
func (r *Runner) runStep(ctx context.Context, p pipeline.Payload) (stack []byte, err error) {
	defer func() {
		if v := recover(); v != nil {
			stack = debug.Stack()
			err = fmt.Errorf("step panicked: %v", v)
		}
	}()
	return nil, r.steps.RunStep(ctx, p)
}

// advance enqueues the next step with its delay, then completes the job.
func (r *Runner) advance(ctx context.Context, run *stepRun) {
	if next, ok := run.def.Next(run.step.Name); ok {
		if err := r.enqueue(ctx, run, next); err != nil {
			run.log.ErrorContext(ctx, "enqueue next step", "next", next.Name, "error", err)
			// Rerunning this step finds its work done and enqueues again.
			if run.job.RetryCount < enqueueRetryBudget {
				r.retry(ctx, run, err, run.step.Retry.Backoff(run.job.RetryCount))
			} else {
				r.fail(ctx, run, err, nil)
			}
			return
		}
	} else {
		run.log.InfoContext(ctx, "pipeline complete")
	}

	completed, err := r.jobs.Complete(ctx, run.job.ID)
	switch {
	case err != nil:
		run.log.ErrorContext(ctx, "complete step", "error", err)
		r.record(run, metrics.ResultError, err)
	case !completed:
		// The lease was lost and the reaper or another worker owns the job.
		run.log.WarnContext(ctx, "step completed after losing its lease")
		r.record(run, metrics.ResultNoop, nil)
	default:
		run.log.InfoContext(ctx, "pipeline step done", "elapsed", r.now().Sub(run.start))
		r.record(run, metrics.ResultSuccess, nil)
	}
}

func (r *Runner) enqueue(ctx context.Context, run *stepRun, next pipeline.Step) error {
	p := run.payload
	p.Step = next.Name
	req, err := service.NewStepJob(p, next, r.now())
	if err != nil {
		return err
	}
	job, err := r.jobs.Create(ctx, req)
	if err != nil {
		return err
	}
	run.log.InfoContext(ctx, "next step enqueued", "next", next.Name, "next_job_id", job.ID, "delay", next.Delay)
	return nil
}

// handleStepError retries a retryable failure while the step's budget
// lasts and fails the job otherwise.
func (r *Runner) handleStepError(ctx context.Context, run *stepRun, err error, stack []byte) {
	inProgress := errors.Is(err, pipeline.ErrImportInProgress)

	if stack == nil && run.step.Retry.ShouldRetry(err, run.job.RetryCount) {
		delay := run.step.Retry.Backoff(run.job.RetryCount)
		if inProgress {
			run.log.InfoContext(ctx, "import in progress, checking again later", "retry_in", delay)
		} else {
			run.log.WarnContext(ctx, "step failed, retrying", "retry_in", delay, "error", err)
		}
		r.retry(ctx, run, err, delay)
		return
	}

	if inProgress {
		// An import that never finishes is a timeout, which operators hear about.
		err = fmt.Errorf("%w: import still running after %d checks", poll.ErrTimeout, run.job.RetryCount+1)
	}
	run.log.ErrorContext(ctx, "step failed", "error", err, "error_class", obserrors.Classify(err))
	r.fail(ctx, run, err, stack)
}

func (r *Runner) retry(ctx context.Context, run *stepRun, err error, delay time.Duration) {
	runAt := r.now().Add(delay).UTC()
	if _, rerr := r.jobs.Retry(ctx, run.job.ID, err.Error(), runAt); rerr != nil {
		run.log.ErrorContext(ctx, "requeue step", "error", rerr, "original_error", err)
		r.record(run, metrics.ResultError, rerr)
		return
	}
	r.record(run, metrics.ResultRetry, err)
}

func (r *Runner) fail(ctx context.Context, run *stepRun, err error, stack []byte) {
	meta := map[string]string{
		"component":   componentLabel,
		"error_chain": errorChain(err),
	}
	if len(stack) > 0 {
		meta["stack"] = string(stack)
	}
	if _, ferr := r.jobs.FailWithDetails(ctx, run.job.ID, err.Error(), service.JobFailureDetails{
		ErrorClass: obserrors.Classify(err),
		Metadata:   meta,
		OccurredAt: r.now(),
	}); ferr != nil {
		run.log.ErrorContext(ctx, "mark step failed", "error", ferr, "original_error", err)
	}
	r.record(run, metrics.ResultError, err)
}

// errorChain lists every error wrapped by err, outermost first, one
// "type: message" line each.
func errorChain(err error) string {
	var b strings.Builder
	var walk func(e error, depth int)
	walk = func(e error, depth int) {
		if e == nil {
			return
		}
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), e, e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap(), depth+1)
		}
	}
	walk(err, 0)
	return strings.TrimSuffix(b.String(), "\n")
}

func (r *Runner) record(run *stepRun, result string, err error) {
	kind, step := string(run.payload.Kind), string(run.payload.Step)
	if kind == "" {
		kind = string(run.job.Type)
	}
	r.recorder.Step(metrics.StepMetric{
		Kind:     kind,
		Step:     step,
		Result:   result,
		Duration: r.now().Sub(run.start),
		Err:      err,
	})
}

// startHeartbeat renews the job lease until the returned stop function is called.
func (r *Runner) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := r.jobs.LeasePolicy().HeartbeatInterval()
	if interval <= 0 {
		interval = r.lease / 3
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ok, err := r.jobs.Heartbeat(ctx, jobID, r.lease); err != nil {
					r.logger.ErrorContext(ctx, "heartbeat failed", "job_id", jobID, "error", err)
				} else if !ok {
					r.logger.WarnContext(ctx, "heartbeat not applied (step may be lost)", "job_id", jobID)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}
