package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/core"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/data/database"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/data/pgxutil"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	apperrors "github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var messageDistributionColumns = []string{
	"id", "uid", "description", "link_distribution_id", "contact_mode", "target", "send_date",
	"message_id", "subject_id", "batch_id", "import_id", "remote_id", "remote_created_at",
	"fallback_of", "fallback_id", "created_at",
}

// messageDistributionRow mirrors message_distribution_summaries.
type messageDistributionRow struct {
	ID                 int64      `db:"id"`
	UID                uuid.UUID  `db:"uid"`
	Description        string     `db:"description"`
	LinkDistributionID int64      `db:"link_distribution_id"`
	ContactMode        string     `db:"contact_mode"`
	Target             string     `db:"target"`
	SendDate           *time.Time `db:"send_date"`
	MessageID          string     `db:"message_id"`
	SubjectID          string     `db:"subject_id"`
	BatchID            *string    `db:"batch_id"`
	ImportID           *string    `db:"import_id"`
	RemoteID           *string    `db:"remote_id"`
	RemoteCreatedAt    *time.Time `db:"remote_created_at"`
	FallbackOf         *int64     `db:"fallback_of"`
	FallbackID         *int64     `db:"fallback_id"`
	CreatedAt          time.Time  `db:"created_at"`
}

func (r messageDistributionRow) toModel() *model.MessageDistribution {
	return &model.MessageDistribution{
		Distribution: model.Distribution{
			ID:          r.ID,
			UID:         r.UID,
			Description: r.Description,
			ImportID:    deref(r.ImportID),
			Remote:      model.RemoteRef{ID: deref(r.RemoteID), CreatedAt: utcPtr(r.RemoteCreatedAt)},
			CreatedAt:   r.CreatedAt.UTC(),
		},
		LinkDistributionID: r.LinkDistributionID,
		ContactMode:        model.ContactMode(r.ContactMode),
		Target:             model.Target(r.Target),
		SendDate:           utcPtr(r.SendDate),
		MessageID:          r.MessageID,
		SubjectID:          r.SubjectID,
		BatchID:            deref(r.BatchID),
		FallbackOf:         r.FallbackOf,
		FallbackID:         r.FallbackID,
	}
}

// MessageDistributionRepo stores message distributions and their frozen recipients.
type MessageDistributionRepo struct {
	DB *sql.DB
}

// NewMessageDistributionRepo creates a new MessageDistributionRepo.
func NewMessageDistributionRepo(db *sql.DB) *MessageDistributionRepo {
	return &MessageDistributionRepo{DB: db}
}

// Create inserts a message distribution. A second fallback for the same
// primary is rejected by the fallback_of unique constraint as a conflict.
func (r *MessageDistributionRepo) Create(
	ctx context.Context,
	req *model.CreateMessageDistributionRequest,
) (*model.MessageDistribution, error) {
	if req == nil {
		return nil, errors.New("create message distribution request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var id int64
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO message_distributions
			(description, link_distribution_id, contact_mode, target, message_id, subject_id, fallback_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		strings.TrimSpace(req.Description), req.LinkDistributionID, string(req.ContactMode), string(req.Target),
		req.MessageID, req.SubjectID, req.FallbackOf,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create message distribution: %w", apperrors.MapDBError(err))
	}
	return r.GetByID(ctx, id)
}

// GetByID retrieves a message distribution by id.
func (r *MessageDistributionRepo) GetByID(ctx context.Context, id int64) (*model.MessageDistribution, error) {
	out, err := r.list(ctx, database.WhereCond("id", database.Equal, id))
	if err != nil {
		return nil, fmt.Errorf("get message distribution %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, ErrDistributionNotFound
	}
	return out[0], nil
}

// ListByLinkDistribution returns the message distributions of a link distribution in creation order.
func (r *MessageDistributionRepo) ListByLinkDistribution(
	ctx context.Context,
	linkDistributionID int64,
) ([]*model.MessageDistribution, error) {
	out, err := r.list(ctx, database.WhereCond("link_distribution_id", database.Equal, linkDistributionID))
	if err != nil {
		return nil, fmt.Errorf("list message distributions of %d: %w", linkDistributionID, err)
	}
	return out, nil
}

func (r *MessageDistributionRepo) list(ctx context.Context, cond database.Condition) ([]*model.MessageDistribution, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions(
		"message_distribution_summaries",
		database.WithColumns(messageDistributionColumns...),
		database.WithCondition(cond),
		database.WithOrderBy("id", "ASC"),
	))

	var rowsOut []messageDistributionRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[messageDistributionRow])
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*model.MessageDistribution, len(rowsOut))
	for i := range rowsOut {
		out[i] = rowsOut[i].toModel()
	}
	return out, nil
}

// UpdateDescription renames a message distribution.
func (r *MessageDistributionRepo) UpdateDescription(ctx context.Context, id int64, description string) error {
	return execOne(ctx, r.DB, `UPDATE message_distributions SET description = $2 WHERE id = $1`, id, description)
}

// SetSendDate schedules the distribution.
func (r *MessageDistributionRepo) SetSendDate(ctx context.Context, id int64, at time.Time) error {
	return execOne(ctx, r.DB, `UPDATE message_distributions SET send_date = $2 WHERE id = $1`, id, at.UTC())
}

// UpdateRefs records remote references. A reference already present is kept.
func (r *MessageDistributionRepo) UpdateRefs(ctx context.Context, id int64, refs core.RefUpdate) error {
	remoteID, remoteAt := remoteArgs(refs.Remote)
	return execOne(ctx, r.DB, `
		UPDATE message_distributions SET
			batch_id = COALESCE(batch_id, $2),
			import_id = COALESCE(import_id, $3),
			remote_created_at = CASE WHEN remote_id IS NULL THEN $5 ELSE remote_created_at END,
			remote_id = COALESCE(remote_id, $4)
		WHERE id = $1`,
		id, refs.BatchID, refs.ImportID, remoteID, remoteAt,
	)
}

// Delete removes a message distribution; its fallback is removed with it.
func (r *MessageDistributionRepo) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.DB, `DELETE FROM message_distributions WHERE id = $1`, id)
}

// SetRecipients replaces the recipient links of a message distribution.
func (r *MessageDistributionRepo) SetRecipients(ctx context.Context, id int64, linkIDs []int64) (int, error) {
	var inserted int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx,
				`DELETE FROM message_distribution_links WHERE message_distribution_id = $1`, id); err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO message_distribution_links (message_distribution_id, link_id)
				SELECT $1, unnest($2::bigint[])
				ON CONFLICT DO NOTHING`, id, linkIDs)
			if err != nil {
				return err
			}
			inserted = tag.RowsAffected()
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("set recipients of message distribution %d: %w", id, apperrors.MapDBError(err))
	}
	return int(inserted), nil
}

// Recipients returns the frozen recipient links with their profiles loaded.
func (r *MessageDistributionRepo) Recipients(ctx context.Context, id int64) ([]*model.RecipientLink, error) {
	links, err := queryLinks(ctx, r.DB, linkWithProfileSelect+`
		JOIN message_distribution_links m ON m.link_id = l.id
		WHERE m.message_distribution_id = $1
		ORDER BY l.id`, id)
	if err != nil {
		return nil, fmt.Errorf("recipients of message distribution %d: %w", id, err)
	}
	return links, nil
}
