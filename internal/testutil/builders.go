package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/google/uuid"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest returns a builder for a link pipeline job on distribution 1.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Type:     model.JobTypeLinkPipeline,
			Priority: 50,
			Payload:  json.RawMessage(`{"kind":"link_distribution","distribution_id":1,"step":"ensure_mailing_list"}`),
		},
	}
}

// WithType sets the job type.
func (b *JobRequestBuilder) WithType(jobType model.JobType) *JobRequestBuilder {
	b.req.Type = jobType
	return b
}

// WithPriority sets the job priority.
func (b *JobRequestBuilder) WithPriority(priority int) *JobRequestBuilder {
	b.req.Priority = priority
	return b
}

// WithStep points the payload at a pipeline step of a distribution.
func (b *JobRequestBuilder) WithStep(kind string, distributionID int64, step string) *JobRequestBuilder {
	b.req.Payload = json.RawMessage(fmt.Sprintf(
		`{"kind":%q,"distribution_id":%d,"step":%q}`, kind, distributionID, step,
	))
	return b
}

// WithScheduledAt sets the scheduled time.
func (b *JobRequestBuilder) WithScheduledAt(scheduledAt time.Time) *JobRequestBuilder {
	b.req.ScheduledAt = &scheduledAt
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// ProfileFixture describes a panelist to insert.
type ProfileFixture struct {
	FirstName string
	Email     string
	Phone     string
	Language  string
	IsOptOut  bool
	NoEmail   bool
	NoText    bool
}

// SeedPanel inserts a panel and returns its id.
func SeedPanel(t TestingTB, db *sql.DB, name string) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var id int64
	if err := db.QueryRowContext(ctx,
		`INSERT INTO panels (name) VALUES ($1) RETURNING id`, name,
	).Scan(&id); err != nil {
		t.Fatalf("seed panel %s: %v", name, err)
	}
	return id
}

// SeedProfile inserts a panelist into panelID and returns its uid.
func SeedProfile(t TestingTB, db *sql.DB, panelID int64, p ProfileFixture) uuid.UUID {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	uid := uuid.New()
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (uid, panel_id, ess_id, country, first_name, email, phone, language, is_opt_out, no_email, no_text)
		VALUES ($1, $2, $3, 'FR', $4, $5, $6, $7, $8, $9, $10)`,
		uid, panelID, uid.String()[:6], p.FirstName, p.Email, p.Phone, p.Language, p.IsOptOut, p.NoEmail, p.NoText,
	)
	if err != nil {
		t.Fatalf("seed profile %s: %v", p.FirstName, err)
	}
	return uid
}
