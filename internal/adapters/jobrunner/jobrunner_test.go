package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/pipeline"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/mocks"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/metrics"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/notify"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/service/failurenotifier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fixedNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

type stepFunc func(ctx context.Context, p pipeline.Payload) error

func (f stepFunc) RunStep(ctx context.Context, p pipeline.Payload) error { return f(ctx, p) }

// manualNotifier never signals; workers park until their context ends.
type manualNotifier struct {
	ch chan struct{}
}

func (n *manualNotifier) Subscribe(model.JobType) (func(), <-chan struct{}) { return func() {}, n.ch }
func (n *manualNotifier) StopAll()                                          {}

type captured struct {
	mu       sync.Mutex
	payloads []notify.StepFailurePayload
}

func (c *captured) sink() notify.Sink {
	return notify.SinkFunc(func(_ context.Context, p notify.StepFailurePayload) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.payloads = append(c.payloads, p)
		return nil
	})
}

func (c *captured) all() []notify.StepFailurePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.StepFailurePayload(nil), c.payloads...)
}

type harness struct {
	repo     *mocks.MockJobRepository
	runner   *Runner
	notified *captured
	registry *prometheus.Registry
}

func newHarness(t *testing.T, steps StepRunner) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockJobRepository(ctrl)
	notified := &captured{}

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:         repo,
		DefaultLease: time.Minute,
		Notifier:     &manualNotifier{ch: make(chan struct{})},
		FailureNotifier: failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{Name: "test", Sink: notified.sink()}},
		}),
	})
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(nil, reg)
	require.NoError(t, err)

	r, err := NewRunner(RunnerOptions{
		Jobs:     jobs,
		Steps:    steps,
		Lease:    time.Minute,
		Recorder: rec,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &harness{repo: repo, runner: r, notified: notified, registry: reg}
}

func stepJob(t *testing.T, kind pipeline.Kind, step pipeline.StepName, retryCount int) *model.Job {
	t.Helper()
	raw, err := json.Marshal(pipeline.Payload{Kind: kind, DistributionID: 42, Step: step})
	require.NoError(t, err)
	return &model.Job{
		ID:         "job-1",
		Type:       kind.JobType(),
		Status:     model.JobStatusRunning,
		Payload:    raw,
		RetryCount: retryCount,
		MaxRetries: 10,
	}
}

func (h *harness) stepCount(t *testing.T, kind, step, result string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	want := map[string]string{"kind": kind, "step": step, "result": result}
	for _, f := range families {
		if f.GetName() != "distributor_pipeline_steps_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if want[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(want) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestNewRunner(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.ErrorContains(t, err, "JobService is required")

	jobs := service.MustNewJobService(service.JobServiceOptions{
		Repo:         mocks.NewMockJobRepository(gomock.NewController(t)),
		DefaultLease: time.Minute,
		Notifier:     &manualNotifier{ch: make(chan struct{})},
	})
	_, err = NewRunner(RunnerOptions{Jobs: jobs})
	require.ErrorContains(t, err, "StepRunner is required")

	_, err = NewRunner(RunnerOptions{Jobs: jobs, Steps: stepFunc(nil), Kinds: []pipeline.Kind{"survey"}})
	require.ErrorIs(t, err, pipeline.ErrUnknownKind)

	r, err := NewRunner(RunnerOptions{Jobs: jobs, Steps: stepFunc(nil)})
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Kind{pipeline.KindLink, pipeline.KindMessage}, r.kinds)
	assert.Equal(t, 1, r.workers)
	assert.Equal(t, defaultLease, r.lease)
}

func TestProcessJob_ChainsNextStep(t *testing.T) {
	var ran pipeline.Payload
	h := newHarness(t, stepFunc(func(_ context.Context, p pipeline.Payload) error {
		ran = p
		return nil
	}))
	job := stepJob(t, pipeline.KindLink, pipeline.StepStartImport, 0)

	gomock.InOrder(
		h.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
				next, err := pipeline.DecodePayload(req.Payload)
				require.NoError(t, err)
				assert.Equal(t, pipeline.StepWaitForImport, next.Step)
				assert.Equal(t, int64(42), next.DistributionID)
				assert.Equal(t, model.JobTypeLinkPipeline, req.Type)
				require.NotNil(t, req.ScheduledAt)
				assert.Equal(t, fixedNow.Add(5*time.Second), *req.ScheduledAt)
				return &model.Job{ID: "job-2", Type: req.Type}, nil
			}),
		h.repo.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil),
	)

	h.runner.processJob(context.Background(), job)

	assert.Equal(t, pipeline.StepStartImport, ran.Step)
	assert.InDelta(t, 1, h.stepCount(t, "link_distribution", "start_import", metrics.ResultSuccess), 0)
	assert.Empty(t, h.notified.all())
}

func TestProcessJob_LastStepCompletesPipeline(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error { return nil }))
	job := stepJob(t, pipeline.KindMessage, pipeline.StepSendDistribution, 0)

	h.repo.EXPECT().Complete(gomock.Any(), "job-1").Return(true, nil)

	h.runner.processJob(context.Background(), job)
}

func TestProcessJob_ImportInProgressIsRetriedQuietly(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error {
		return pipeline.ErrImportInProgress
	}))
	job := stepJob(t, pipeline.KindLink, pipeline.StepWaitForImport, 2)

	// 8s · 2² after the current attempt.
	h.repo.EXPECT().Retry(gomock.Any(), "job-1", pipeline.ErrImportInProgress.Error(), fixedNow.Add(32*time.Second)).
		Return(true, nil)

	h.runner.processJob(context.Background(), job)

	assert.Empty(t, h.notified.all())
	assert.InDelta(t, 1, h.stepCount(t, "link_distribution", "wait_for_import", metrics.ResultRetry), 0)
}

func TestProcessJob_ImportNeverFinishing(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error {
		return pipeline.ErrImportInProgress
	}))
	job := stepJob(t, pipeline.KindLink, pipeline.StepWaitForImport, 10)

	h.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	h.repo.EXPECT().Fail(gomock.Any(), "job-1", gomock.Any()).Return(true, nil)

	h.runner.processJob(context.Background(), job)

	got := h.notified.all()
	require.Len(t, got, 1)
	assert.Equal(t, "poll_timeout", got[0].ErrorClass)
	assert.Contains(t, got[0].Error, "import still running after 11 checks")
}

func TestProcessJob_ServerErrorRetried(t *testing.T) {
	srvErr := &qualtrics.ServerError{APIError: qualtrics.APIError{StatusCode: 503}}
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error { return srvErr }))
	job := stepJob(t, pipeline.KindMessage, pipeline.StepEnsureTransactionBatch, 0)

	h.repo.EXPECT().Retry(gomock.Any(), "job-1", srvErr.Error(), fixedNow.Add(8*time.Second)).Return(true, nil)

	h.runner.processJob(context.Background(), job)

	assert.Empty(t, h.notified.all())
}

func TestProcessJob_ClientErrorFailsAndNotifies(t *testing.T) {
	cliErr := &qualtrics.ClientError{APIError: qualtrics.APIError{StatusCode: 400, ErrorMessage: "bad list"}}
	stepErr := fmt.Errorf("create mailing list: %w", cliErr)
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error { return stepErr }))
	job := stepJob(t, pipeline.KindLink, pipeline.StepEnsureMailingList, 0)

	h.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	h.repo.EXPECT().Fail(gomock.Any(), "job-1", stepErr.Error()).Return(true, nil)

	h.runner.processJob(context.Background(), job)

	got := h.notified.all()
	require.Len(t, got, 1)
	assert.Equal(t, "qualtrics_client", got[0].ErrorClass)
	assert.Equal(t, "ensure_mailing_list", got[0].Step)
	assert.Equal(t, int64(42), got[0].DistributionID)
	assert.Equal(t, componentLabel, got[0].Metadata["component"])
	assert.Equal(t,
		"*fmt.wrapError: "+stepErr.Error()+"\n  *qualtrics.ClientError: "+cliErr.Error(),
		got[0].Metadata["error_chain"])
	assert.NotContains(t, got[0].Metadata, "stack")
}

func TestErrorChain(t *testing.T) {
	base := errors.New("boom")
	joined := errors.Join(base, errors.New("late"))

	assert.Equal(t, "*errors.errorString: boom", errorChain(base))
	assert.Equal(t,
		"*fmt.wrapError: step: boom\nlate\n  *errors.joinError: boom\nlate\n    *errors.errorString: boom\n    *errors.errorString: late",
		errorChain(fmt.Errorf("step: %w", joined)))
	assert.Empty(t, errorChain(nil))
}

func TestProcessJob_PanicFailsWithStack(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error {
		panic("nil distribution")
	}))
	job := stepJob(t, pipeline.KindLink, pipeline.StepGenerateLinks, 0)

	h.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	h.repo.EXPECT().Fail(gomock.Any(), "job-1", "step panicked: nil distribution").Return(true, nil)

	h.runner.processJob(context.Background(), job)

	got := h.notified.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Metadata["stack"], "runtime/debug.Stack")
	assert.Equal(t, "*errors.errorString: step panicked: nil distribution", got[0].Metadata["error_chain"])
}

func TestProcessJob_UnroutablePayload(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error {
		t.Fatal("step must not run")
		return nil
	}))
	job := stepJob(t, pipeline.KindLink, pipeline.StepSendDistribution, 0)

	h.repo.EXPECT().GetByID(gomock.Any(), "job-1").Return(job, nil)
	h.repo.EXPECT().Fail(gomock.Any(), "job-1", `link_distribution pipeline has no step "send_distribution"`).
		Return(true, nil)

	h.runner.processJob(context.Background(), job)
	assert.Len(t, h.notified.all(), 1)
}

func TestProcessJob_EnqueueFailureRetriesStep(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error { return nil }))
	job := stepJob(t, pipeline.KindLink, pipeline.StepGenerateLinks, 0)

	h.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	h.repo.EXPECT().Retry(gomock.Any(), "job-1", "create job: connection reset", fixedNow.Add(8*time.Second)).
		Return(true, nil)

	h.runner.processJob(context.Background(), job)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error { return nil }))
	h.repo.EXPECT().ReserveNext(gomock.Any(), gomock.Any(), 60).
		Return(nil, model.ErrNoJobsAvailable).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.runner.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRun_ReturnsQueueErrors(t *testing.T) {
	h := newHarness(t, stepFunc(func(context.Context, pipeline.Payload) error { return nil }))
	h.repo.EXPECT().ReserveNext(gomock.Any(), gomock.Any(), 60).
		Return(nil, errors.New("database is down")).AnyTimes()

	err := h.runner.Run(context.Background())
	require.ErrorContains(t, err, "database is down")
}
