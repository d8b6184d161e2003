package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/google/uuid"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobRepository defines the interface for job data operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, jobType model.JobType, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, jobType model.JobType) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	// Fail marks a running job as permanently failed.
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	// Retry puts a running job back to pending at runAt and increments its retry count.
	Retry(ctx context.Context, id, errMsg string, runAt time.Time) (bool, error)
	Stats(ctx context.Context, jobType model.JobType) (*model.JobStats, error)
	List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error)
	Delete(ctx context.Context, id string) error
	DeleteByPayloadField(ctx context.Context, params DeleteByPayloadFieldParams) (int, error)
}

// JobRepositoryTx defines optional transactional job creation support.
type JobRepositoryTx interface {
	CreateInTx(ctx context.Context, tx *sql.Tx, req *model.CreateJobRequest) (*model.Job, error)
}

// DeleteByPayloadFieldParams groups parameters for DeleteByPayloadField to keep param count ≤3.
type DeleteByPayloadFieldParams struct {
	JobType    model.JobType
	FieldName  string
	FieldValue string
}

// RefUpdate names the remote references to record. Nil fields are left
// untouched and a reference already recorded is never overwritten.
type RefUpdate struct {
	ListID   *string
	BatchID  *string
	ImportID *string
	Remote   *model.RemoteRef
}

// LinkDistributionListOptions controls paging for listing link distributions.
type LinkDistributionListOptions struct {
	SurveyID *string
	Limit    int
	Offset   int
}

// LinkDistributionRepository stores link distributions and their recipient links.
type LinkDistributionRepository interface {
	Create(ctx context.Context, req *model.CreateLinkDistributionRequest) (*model.LinkDistribution, error)
	GetByID(ctx context.Context, id int64) (*model.LinkDistribution, error)
	List(ctx context.Context, opts LinkDistributionListOptions) ([]*model.LinkDistribution, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	SetExpirationDate(ctx context.Context, id int64, at time.Time) error
	UpdateRefs(ctx context.Context, id int64, refs RefUpdate) error
	Delete(ctx context.Context, id int64) error

	// ReplaceLinks drops the recipient links of a distribution and records one
	// empty link per profile.
	ReplaceLinks(ctx context.Context, id int64, profileIDs []uuid.UUID) (int, error)
	// Links returns the recipient links with their profiles loaded.
	Links(ctx context.Context, id int64) ([]*model.RecipientLink, error)
	// UpdateLinks records contact ids and URLs in bulk.
	UpdateLinks(ctx context.Context, links []*model.RecipientLink) (int, error)
}

// MessageDistributionRepository stores message distributions and their frozen recipients.
type MessageDistributionRepository interface {
	Create(ctx context.Context, req *model.CreateMessageDistributionRequest) (*model.MessageDistribution, error)
	GetByID(ctx context.Context, id int64) (*model.MessageDistribution, error)
	ListByLinkDistribution(ctx context.Context, linkDistributionID int64) ([]*model.MessageDistribution, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	SetSendDate(ctx context.Context, id int64, at time.Time) error
	UpdateRefs(ctx context.Context, id int64, refs RefUpdate) error
	Delete(ctx context.Context, id int64) error

	// SetRecipients replaces the recipient links of a message distribution.
	SetRecipients(ctx context.Context, id int64, linkIDs []int64) (int, error)
	// Recipients returns the frozen recipient links with their profiles loaded.
	Recipients(ctx context.Context, id int64) ([]*model.RecipientLink, error)
}

// ProfileRepository is the recipient source.
type ProfileRepository interface {
	// Candidates returns the profiles of the given panels that did not opt out.
	Candidates(ctx context.Context, panelIDs []int64) ([]*model.Profile, error)
	GetByUID(ctx context.Context, uid uuid.UUID) (*model.Profile, error)
	// CountByPanel returns the number of panelists of each panel.
	CountByPanel(ctx context.Context, panelIDs []int64) (map[int64]int, error)
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReaperRepository defines the interface for job cleanup operations.
type ReaperRepository interface {
	// FailStalePendingJobs marks pending jobs overdue by more than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs marked as failed.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given status older than maxAge.
	// Processes up to batchSize jobs per call to prevent long locks.
	// Returns the number of jobs deleted.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}
