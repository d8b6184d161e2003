package data

import (
	"context"
	"fmt"
	"strconv"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/data/pgxutil"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/jackc/pgx/v5"
)

// jobFilterQueryBuilder helps build filtered job queries.
type jobFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *jobFilterQueryBuilder) addFilter(condition string, value any) {
	b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
	b.args = append(b.args, value)
	b.argIdx++
}

// buildJobListQuery constructs the SQL query and args for the job list with filtering.
func buildJobListQuery(opts *model.JobListOptions) (string, []any) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}

	builder := &jobFilterQueryBuilder{
		query:  `SELECT ` + jobColumns + ` FROM jobs j WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	addJobListFilters(builder, opts)
	addJobListSorting(builder, opts)
	return builder.query, builder.args
}

// addJobListFilters adds filter conditions to the query builder.
func addJobListFilters(builder *jobFilterQueryBuilder, opts *model.JobListOptions) {
	if opts.Status != nil {
		builder.addFilter("j.status", string(*opts.Status))
	}
	if opts.Type != nil {
		builder.addFilter("j.type", string(*opts.Type))
	}
	if opts.DistributionID != nil {
		builder.addFilter("(j.payload->>'distribution_id')", strconv.FormatInt(*opts.DistributionID, 10))
	}
}

// addJobListSorting adds sorting to the query builder.
func addJobListSorting(builder *jobFilterQueryBuilder, opts *model.JobListOptions) {
	validSortFields := map[string]string{
		"created_at": "j.created_at",
		"status":     "j.status",
		"type":       "j.type",
	}

	dbField, ok := validSortFields[opts.SortBy]
	if !ok {
		dbField = "j.created_at"
	}

	if opts.SortOrder == "asc" {
		builder.query += fmt.Sprintf(" ORDER BY %s ASC, j.id ASC", dbField)
		return
	}
	builder.query += fmt.Sprintf(" ORDER BY %s DESC, j.id DESC", dbField)
}

// List returns jobs with optional filtering, most recent first by default.
func (r *JobRepo) List(ctx context.Context, opts *model.JobListOptions) ([]*model.Job, error) {
	if opts == nil {
		opts = &model.JobListOptions{}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := max(opts.Offset, 0)

	query, args := buildJobListQuery(opts)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	var jobs []*model.Job
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			job, scanErr := scanJobFromRow(rows)
			if scanErr != nil {
				return scanErr
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
