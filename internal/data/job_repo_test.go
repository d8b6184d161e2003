package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("defaults", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			job, err := repo.Create(context.Background(), testutil.NewJobRequest().Build())
			require.NoError(t, err)

			assert.NotEmpty(t, job.ID)
			assert.Equal(t, model.JobTypeLinkPipeline, job.Type)
			assert.Equal(t, model.JobStatusPending, job.Status)
			assert.Equal(t, defaultMaxRetries, job.MaxRetries)
			assert.Equal(t, 0, job.RetryCount)
			assert.JSONEq(t, `{}`, string(job.Metadata))
			assert.JSONEq(t, `{"kind":"link_distribution","distribution_id":1,"step":"ensure_mailing_list"}`, string(job.Payload))
		})
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewJobRepo(db, RepoConfig{})
			_, err := repo.Create(context.Background(), testutil.NewJobRequest().WithType("survey_export").Build())
			assert.Error(t, err)
		})
	})

	t.Run("in transaction", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			tx, err := db.BeginTx(ctx, nil)
			require.NoError(t, err)

			job, err := repo.CreateInTx(ctx, tx, testutil.NewJobRequest().Build())
			require.NoError(t, err)
			require.NoError(t, tx.Rollback())

			_, err = repo.GetByID(ctx, job.ID)
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	})
}

func TestJobRepo_ReserveNext(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("highest priority first", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			_, err := repo.Create(ctx, testutil.NewJobRequest().WithPriority(10).Build())
			require.NoError(t, err)
			urgent, err := repo.Create(ctx, testutil.NewJobRequest().WithPriority(90).Build())
			require.NoError(t, err)

			job, err := repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
			require.NoError(t, err)
			assert.Equal(t, urgent.ID, job.ID)
			assert.Equal(t, model.JobStatusRunning, job.Status)
			require.NotNil(t, job.LeaseExpiresAt)
			require.NotNil(t, job.StartedAt)
		})
	})

	t.Run("ignores other queues and future jobs", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			_, err := repo.Create(ctx, testutil.NewJobRequest().
				WithType(model.JobTypeMessagePipeline).
				WithStep("message_distribution", 3, "ensure_transaction_batch").
				Build())
			require.NoError(t, err)
			_, err = repo.Create(ctx, testutil.NewJobRequest().
				WithScheduledAt(time.Now().Add(time.Hour)).
				Build())
			require.NoError(t, err)

			_, err = repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
			assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

			job, err := repo.ReserveNext(ctx, model.JobTypeMessagePipeline, 30)
			require.NoError(t, err)
			assert.Equal(t, model.JobTypeMessagePipeline, job.Type)
		})
	})

	t.Run("a job is reserved once", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			_, err := repo.Create(ctx, testutil.NewJobRequest().Build())
			require.NoError(t, err)

			reserve := func() error {
				_, rerr := repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
				return rerr
			}
			errs := testutil.RunConcurrent(reserve, reserve, reserve)

			var reserved, empty int
			for _, e := range errs {
				switch {
				case e == nil:
					reserved++
				case errors.Is(e, model.ErrNoJobsAvailable):
					empty++
				default:
					t.Errorf("unexpected reserve error: %v", e)
				}
			}
			assert.Equal(t, 1, reserved)
			assert.Equal(t, 2, empty)
		})
	})

	t.Run("requeues expired leases", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			clock := NewFixedTimeProvider(time.Now().UTC())
			repo := NewJobRepo(db, RepoConfig{TimeProvider: clock})
			created, err := repo.Create(ctx, testutil.NewJobRequest().Build())
			require.NoError(t, err)

			_, err = repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 10)
			require.NoError(t, err)

			clock.Advance(time.Minute)
			again, err := repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 10)
			require.NoError(t, err)
			assert.Equal(t, created.ID, again.ID)
		})
	})
}

func TestJobRepo_Outcomes(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	reserve := func(t *testing.T, repo *JobRepo) *model.Job {
		t.Helper()
		ctx := context.Background()
		_, err := repo.Create(ctx, testutil.NewJobRequest().Build())
		require.NoError(t, err)
		job, err := repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
		require.NoError(t, err)
		return job
	}

	t.Run("complete", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			job := reserve(t, repo)

			ok, err := repo.Complete(ctx, job.ID)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusCompleted, got.Status)
			assert.NotNil(t, got.CompletedAt)
			assert.Nil(t, got.LeaseExpiresAt)

			ok, err = repo.Complete(ctx, job.ID)
			require.NoError(t, err)
			assert.False(t, ok, "only running jobs complete")
		})
	})

	t.Run("fail is permanent", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			job := reserve(t, repo)

			ok, err := repo.Fail(ctx, job.ID, "400 Bad Request: invalid survey")
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusFailed, got.Status)
			require.NotNil(t, got.LastError)
			assert.Equal(t, "400 Bad Request: invalid survey", *got.LastError)
			assert.Equal(t, 0, got.RetryCount)

			_, err = repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
			assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
		})
	})

	t.Run("retry reschedules", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			job := reserve(t, repo)
			runAt := time.Now().Add(8 * time.Second).UTC()

			ok, err := repo.Retry(ctx, job.ID, "502 Bad Gateway", runAt)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusPending, got.Status)
			assert.Equal(t, 1, got.RetryCount)
			assert.WithinDuration(t, runAt, got.ScheduledAt, time.Second)
			require.NotNil(t, got.LastError)

			_, err = repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
			assert.ErrorIs(t, err, model.ErrNoJobsAvailable, "not before its backoff")
		})
	})

	t.Run("heartbeat extends the lease", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			job := reserve(t, repo)

			ok, err := repo.Heartbeat(ctx, job.ID, 120)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := repo.GetByID(ctx, job.ID)
			require.NoError(t, err)
			require.NotNil(t, got.LeaseExpiresAt)
			assert.True(t, got.LeaseExpiresAt.After(*job.LeaseExpiresAt))

			_, err = repo.Heartbeat(ctx, job.ID, 0)
			assert.Error(t, err)
		})
	})
}

func TestJobRepo_ListAndStats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewJobRepo(db, RepoConfig{})
		for _, id := range []int64{7, 7, 8} {
			_, err := repo.Create(ctx, testutil.NewJobRequest().
				WithStep("link_distribution", id, "ensure_mailing_list").
				Build())
			require.NoError(t, err)
		}
		running, err := repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
		require.NoError(t, err)

		dist := int64(7)
		jobs, err := repo.List(ctx, &model.JobListOptions{DistributionID: &dist})
		require.NoError(t, err)
		assert.Len(t, jobs, 2)

		status := model.JobStatusRunning
		jobs, err = repo.List(ctx, &model.JobListOptions{Status: &status})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, running.ID, jobs[0].ID)

		jobs, err = repo.List(ctx, &model.JobListOptions{SortBy: "created_at", SortOrder: "asc", Limit: 2})
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.False(t, jobs[0].CreatedAt.After(jobs[1].CreatedAt))

		stats, err := repo.Stats(ctx, model.JobTypeLinkPipeline)
		require.NoError(t, err)
		assert.Equal(t, model.JobStats{Pending: 2, Running: 1}, *stats)
	})
}

func TestJobRepo_Delete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("running job with a lease is kept", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			_, err := repo.Create(ctx, testutil.NewJobRequest().Build())
			require.NoError(t, err)
			job, err := repo.ReserveNext(ctx, model.JobTypeLinkPipeline, 30)
			require.NoError(t, err)

			assert.ErrorIs(t, repo.Delete(ctx, job.ID), ErrJobNotDeletable)
			assert.ErrorIs(t, repo.Delete(ctx, "00000000-0000-0000-0000-000000000000"), ErrJobNotFound)
		})
	})

	t.Run("pending steps of a distribution", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			repo := NewJobRepo(db, RepoConfig{})
			for _, id := range []int64{7, 8} {
				_, err := repo.Create(ctx, testutil.NewJobRequest().
					WithType(model.JobTypeMessagePipeline).
					WithStep("message_distribution", id, "send_distribution").
					Build())
				require.NoError(t, err)
			}

			n, err := repo.DeleteByPayloadField(ctx, core.DeleteByPayloadFieldParams{
				JobType:    model.JobTypeMessagePipeline,
				FieldName:  "distribution_id",
				FieldValue: "7",
			})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			left, err := repo.List(ctx, nil)
			require.NoError(t, err)
			require.Len(t, left, 1)
			var payload map[string]any
			require.NoError(t, json.Unmarshal(left[0].Payload, &payload))
			assert.InDelta(t, 8, payload["distribution_id"], 0)
		})
	})
}
