package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/config"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReaperRepo returns its count on the first batch of each sweep and zero afterwards.
type fakeReaperRepo struct {
	mu sync.Mutex

	staleCount int64
	staleErr   error
	staleCalls int

	deleteCount int64
	deleteErr   error
	deleteCalls map[model.JobStatus]int
}

func (f *fakeReaperRepo) FailStalePendingJobs(_ context.Context, _ time.Duration, _ int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCalls++
	if f.staleErr != nil {
		return 0, f.staleErr
	}
	if f.staleCalls == 1 {
		return f.staleCount, nil
	}
	return 0, nil
}

func (f *fakeReaperRepo) DeleteOldJobs(_ context.Context, params core.DeleteOldJobsParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteCalls == nil {
		f.deleteCalls = map[model.JobStatus]int{}
	}
	f.deleteCalls[params.Status]++
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	if f.deleteCalls[params.Status] == 1 {
		return f.deleteCount, nil
	}
	return 0, nil
}

func (f *fakeReaperRepo) calls() (int, map[model.JobStatus]int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.JobStatus]int, len(f.deleteCalls))
	for k, v := range f.deleteCalls {
		out[k] = v
	}
	return f.staleCalls, out
}

var _ core.ReaperRepository = (*fakeReaperRepo)(nil)

type fakeQueueStats map[model.JobType]*model.JobStats

func (f fakeQueueStats) Stats(_ context.Context, jobType model.JobType) (*model.JobStats, error) {
	if s, ok := f[jobType]; ok {
		return s, nil
	}
	return nil, errors.New("unknown queue")
}

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:        5 * time.Minute,
		PendingMaxAge:   time.Hour,
		CompletedMaxAge: 7 * 24 * time.Hour,
		FailedMaxAge:    30 * 24 * time.Hour,
		BatchSize:       1000,
	}
}

func TestNewReaperService(t *testing.T) {
	svc, err := NewReaperService(ReaperServiceOptions{Repo: &fakeReaperRepo{}, Config: reaperConfig(), Logger: slog.Default()})
	require.NoError(t, err)
	assert.NotNil(t, svc)

	_, err = NewReaperService(ReaperServiceOptions{Config: reaperConfig()})
	require.ErrorContains(t, err, "ReaperRepository is required")

	assert.Panics(t, func() { MustNewReaperService(ReaperServiceOptions{}) })
}

func TestReaperService_runCleanup(t *testing.T) {
	t.Run("drains every sweep", func(t *testing.T) {
		repo := &fakeReaperRepo{staleCount: 5, deleteCount: 10}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})

		require.NoError(t, svc.runCleanup(context.Background()))

		stale, deletes := repo.calls()
		assert.Equal(t, 2, stale)
		assert.Equal(t, map[model.JobStatus]int{model.JobStatusCompleted: 2, model.JobStatusFailed: 2}, deletes)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		repo := &fakeReaperRepo{staleErr: errors.New("lock timeout"), deleteCount: 10}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})

		err := svc.runCleanup(context.Background())
		require.ErrorContains(t, err, "fail_pending: lock timeout")

		stale, deletes := repo.calls()
		assert.Equal(t, 1, stale)
		assert.Equal(t, 2, deletes[model.JobStatusFailed])
	})

	t.Run("publishes queue depth", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		rec, err := metrics.NewRecorder(nil, reg)
		require.NoError(t, err)

		svc := MustNewReaperService(ReaperServiceOptions{
			Repo:   &fakeReaperRepo{},
			Config: reaperConfig(),
			Queue: fakeQueueStats{
				model.JobTypeLinkPipeline:    {Pending: 2, Failed: 1},
				model.JobTypeMessagePipeline: {Running: 1},
			},
			Recorder: rec,
		})
		require.NoError(t, svc.runCleanup(context.Background()))

		families, err := reg.Gather()
		require.NoError(t, err)
		require.Len(t, families, 1)
		assert.Equal(t, "distributor_queue_jobs", families[0].GetName())
		assert.Len(t, families[0].GetMetric(), 8)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &fakeReaperRepo{}
		cfg := reaperConfig()
		cfg.Interval = 100 * time.Millisecond
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		require.Eventually(t, func() bool {
			stale, _ := repo.calls()
			return stale >= 1
		}, time.Second, 10*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}
	})

	t.Run("keeps ticking despite errors", func(t *testing.T) {
		repo := &fakeReaperRepo{staleErr: errors.New("test error")}
		cfg := reaperConfig()
		cfg.Interval = 50 * time.Millisecond
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err := svc.Run(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		stale, _ := repo.calls()
		assert.GreaterOrEqual(t, stale, 2)
	})
}
