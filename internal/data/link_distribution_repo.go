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

var linkDistributionColumns = []string{
	"id", "uid", "description", "survey_id", "expiration_date",
	"list_id", "import_id", "remote_id", "remote_created_at", "created_at", "panel_ids",
}

// linkDistributionRow mirrors link_distribution_summaries.
type linkDistributionRow struct {
	ID              int64      `db:"id"`
	UID             uuid.UUID  `db:"uid"`
	Description     string     `db:"description"`
	SurveyID        string     `db:"survey_id"`
	ExpirationDate  *time.Time `db:"expiration_date"`
	ListID          *string    `db:"list_id"`
	ImportID        *string    `db:"import_id"`
	RemoteID        *string    `db:"remote_id"`
	RemoteCreatedAt *time.Time `db:"remote_created_at"`
	CreatedAt       time.Time  `db:"created_at"`
	PanelIDs        []int64    `db:"panel_ids"`
}

func (r linkDistributionRow) toModel() *model.LinkDistribution {
	return &model.LinkDistribution{
		Distribution: model.Distribution{
			ID:          r.ID,
			UID:         r.UID,
			Description: r.Description,
			ImportID:    deref(r.ImportID),
			Remote:      model.RemoteRef{ID: deref(r.RemoteID), CreatedAt: utcPtr(r.RemoteCreatedAt)},
			CreatedAt:   r.CreatedAt.UTC(),
		},
		SurveyID:       r.SurveyID,
		PanelIDs:       r.PanelIDs,
		ExpirationDate: utcPtr(r.ExpirationDate),
		ListID:         deref(r.ListID),
	}
}

// LinkDistributionRepo stores link distributions and their recipient links.
type LinkDistributionRepo struct {
	DB *sql.DB
}

// NewLinkDistributionRepo creates a new LinkDistributionRepo.
func NewLinkDistributionRepo(db *sql.DB) *LinkDistributionRepo {
	return &LinkDistributionRepo{DB: db}
}

// Create inserts a link distribution and its panel selection.
func (r *LinkDistributionRepo) Create(
	ctx context.Context,
	req *model.CreateLinkDistributionRequest,
) (*model.LinkDistribution, error) {
	if req == nil {
		return nil, errors.New("create link distribution request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var id int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if err := tx.QueryRow(ctx, `
				INSERT INTO link_distributions (description, survey_id, expiration_date)
				VALUES ($1, $2, $3)
				RETURNING id`,
				strings.TrimSpace(req.Description), strings.TrimSpace(req.SurveyID), req.ExpirationDate,
			).Scan(&id); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO link_distribution_panels (distribution_id, panel_id)
				SELECT $1, unnest($2::bigint[])
				ON CONFLICT DO NOTHING`, id, req.PanelIDs)
			return err
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create link distribution: %w", apperrors.MapDBError(err))
	}
	return r.GetByID(ctx, id)
}

// GetByID retrieves a link distribution by id.
func (r *LinkDistributionRepo) GetByID(ctx context.Context, id int64) (*model.LinkDistribution, error) {
	query, args := database.BuildListQuery(database.NewListQueryOptions(
		"link_distribution_summaries",
		database.WithColumns(linkDistributionColumns...),
		database.WithCondition(database.WhereCond("id", database.Equal, id)),
	))

	var row linkDistributionRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		row, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[linkDistributionRow])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDistributionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link distribution %d: %w", id, err)
	}
	return row.toModel(), nil
}

// List returns link distributions, most recent first.
func (r *LinkDistributionRepo) List(
	ctx context.Context,
	opts core.LinkDistributionListOptions,
) ([]*model.LinkDistribution, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	queryOpts := []database.ListQueryOption{
		database.WithColumns(linkDistributionColumns...),
		database.WithOrderBy("id", "DESC"),
		database.WithLimit(limit),
		database.WithOffset(max(opts.Offset, 0)),
	}
	if opts.SurveyID != nil {
		queryOpts = append(queryOpts,
			database.WithCondition(database.WhereCond("survey_id", database.Equal, *opts.SurveyID)))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("link_distribution_summaries", queryOpts...))

	var rowsOut []linkDistributionRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[linkDistributionRow])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list link distributions: %w", err)
	}

	out := make([]*model.LinkDistribution, len(rowsOut))
	for i := range rowsOut {
		out[i] = rowsOut[i].toModel()
	}
	return out, nil
}

// UpdateDescription renames a link distribution.
func (r *LinkDistributionRepo) UpdateDescription(ctx context.Context, id int64, description string) error {
	return execOne(ctx, r.DB, `UPDATE link_distributions SET description = $2 WHERE id = $1`, id, description)
}

// SetExpirationDate records when the generated links stop working.
func (r *LinkDistributionRepo) SetExpirationDate(ctx context.Context, id int64, at time.Time) error {
	return execOne(ctx, r.DB, `UPDATE link_distributions SET expiration_date = $2 WHERE id = $1`, id, at.UTC())
}

// UpdateRefs records remote references. A reference already present is kept.
func (r *LinkDistributionRepo) UpdateRefs(ctx context.Context, id int64, refs core.RefUpdate) error {
	remoteID, remoteAt := remoteArgs(refs.Remote)
	return execOne(ctx, r.DB, `
		UPDATE link_distributions SET
			list_id = COALESCE(list_id, $2),
			import_id = COALESCE(import_id, $3),
			remote_created_at = CASE WHEN remote_id IS NULL THEN $5 ELSE remote_created_at END,
			remote_id = COALESCE(remote_id, $4)
		WHERE id = $1`,
		id, refs.ListID, refs.ImportID, remoteID, remoteAt,
	)
}

// Delete removes a link distribution with its links and message distributions.
func (r *LinkDistributionRepo) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.DB, `DELETE FROM link_distributions WHERE id = $1`, id)
}

// ReplaceLinks drops the recipient links of a distribution and records one
// empty link per profile.
func (r *LinkDistributionRepo) ReplaceLinks(ctx context.Context, id int64, profileIDs []uuid.UUID) (int, error) {
	uids := make([]string, len(profileIDs))
	for i, u := range profileIDs {
		uids[i] = u.String()
	}

	var inserted int64
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM links WHERE distribution_id = $1`, id); err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO links (distribution_id, profile_id)
				SELECT $1, unnest($2::text[])::uuid`, id, uids)
			if err != nil {
				return err
			}
			inserted = tag.RowsAffected()
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("replace links of distribution %d: %w", id, apperrors.MapDBError(err))
	}
	return int(inserted), nil
}

const linkWithProfileSelect = `
	SELECT l.id, l.distribution_id, l.profile_id, l.contact_id, l.url, ` + profileColumns + `
	FROM links l
	JOIN profiles p ON p.uid = l.profile_id
	JOIN panels pn ON pn.id = p.panel_id`

// Links returns the recipient links with their profiles loaded.
func (r *LinkDistributionRepo) Links(ctx context.Context, id int64) ([]*model.RecipientLink, error) {
	links, err := queryLinks(ctx, r.DB, linkWithProfileSelect+`
		WHERE l.distribution_id = $1
		ORDER BY l.id`, id)
	if err != nil {
		return nil, fmt.Errorf("links of distribution %d: %w", id, err)
	}
	return links, nil
}

// UpdateLinks records contact ids and URLs in bulk.
func (r *LinkDistributionRepo) UpdateLinks(ctx context.Context, links []*model.RecipientLink) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(links))
	contactIDs := make([]string, len(links))
	urls := make([]string, len(links))
	for i, l := range links {
		ids[i], contactIDs[i], urls[i] = l.ID, l.ContactID, l.URL
	}

	res, err := r.DB.ExecContext(ctx, `
		UPDATE links l
		SET contact_id = u.contact_id, url = u.url
		FROM unnest($1::bigint[], $2::text[], $3::text[]) AS u(id, contact_id, url)
		WHERE l.id = u.id`, ids, contactIDs, urls)
	if err != nil {
		return 0, fmt.Errorf("update links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func queryLinks(ctx context.Context, db *sql.DB, query string, args ...any) ([]*model.RecipientLink, error) {
	var out []*model.RecipientLink
	err := pgxutil.WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.RecipientLink, error) {
			l := &model.RecipientLink{}
			var p profileRow
			dest := append([]any{&l.ID, &l.DistributionID, &l.ProfileID, &l.ContactID, &l.URL}, p.scanTargets()...)
			if err := row.Scan(dest...); err != nil {
				return nil, err
			}
			l.Profile = p.toModel()
			return l, nil
		})
		return err
	})
	return out, err
}

// execOne runs a single-row statement and maps "no row" to ErrDistributionNotFound.
func execOne(ctx context.Context, db *sql.DB, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	changed, err := rowsChanged(res)
	if err != nil {
		return err
	}
	if !changed {
		return ErrDistributionNotFound
	}
	return nil
}

func remoteArgs(ref *model.RemoteRef) (*string, *time.Time) {
	if ref == nil || !ref.IsSet() {
		return nil, nil
	}
	id := ref.ID
	var at *time.Time
	if ref.CreatedAt != nil {
		t := ref.CreatedAt.UTC()
		at = &t
	}
	return &id, at
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
