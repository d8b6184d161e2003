package data

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/data/pgxutil"
	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// profileColumns expects profiles aliased p and panels aliased pn.
const profileColumns = `p.id, p.uid, p.ess_id, p.country, p.first_name, p.last_name, p.email, p.phone,
	p.language, p.sex, p.is_opt_out, p.no_email, p.no_text, p.extra, pn.id, pn.name`

type profileRow struct {
	model.Profile
	extra map[string]string
}

func (r *profileRow) scanTargets() []any {
	p := &r.Profile
	return []any{
		&p.ID, &p.UID, &p.ESSID, &p.Country, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.Language, &p.Sex, &p.IsOptOut, &p.NoEmail, &p.NoText, &r.extra, &p.Panel.ID, &p.Panel.Name,
	}
}

func (r *profileRow) toModel() *model.Profile {
	p := r.Profile
	if len(r.extra) > 0 {
		p.Extra = r.extra
	}
	return &p
}

// ProfileRepo reads panelists from the recipient source tables.
type ProfileRepo struct {
	DB *sql.DB
}

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db}
}

// Candidates returns the profiles of the given panels that did not opt out.
func (r *ProfileRepo) Candidates(ctx context.Context, panelIDs []int64) ([]*model.Profile, error) {
	if len(panelIDs) == 0 {
		return nil, nil
	}
	profiles, err := r.query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		JOIN panels pn ON pn.id = p.panel_id
		WHERE p.panel_id = ANY($1) AND NOT p.is_opt_out
		ORDER BY p.id`, panelIDs)
	if err != nil {
		return nil, fmt.Errorf("candidate profiles: %w", err)
	}
	return profiles, nil
}

// GetByUID retrieves a panelist by uid.
func (r *ProfileRepo) GetByUID(ctx context.Context, uid uuid.UUID) (*model.Profile, error) {
	profiles, err := r.query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles p
		JOIN panels pn ON pn.id = p.panel_id
		WHERE p.uid = $1`, uid.String())
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	if len(profiles) == 0 {
		return nil, ErrProfileNotFound
	}
	return profiles[0], nil
}

// CountByPanel returns the number of panelists of each panel, opted-out ones included.
func (r *ProfileRepo) CountByPanel(ctx context.Context, panelIDs []int64) (map[int64]int, error) {
	counts := make(map[int64]int, len(panelIDs))
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT panel_id, count(*)
			FROM profiles
			WHERE panel_id = ANY($1)
			GROUP BY panel_id`, panelIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var n int
			if err := rows.Scan(&id, &n); err != nil {
				return err
			}
			counts[id] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("count panelists: %w", err)
	}
	return counts, nil
}

func (r *ProfileRepo) query(ctx context.Context, query string, args ...any) ([]*model.Profile, error) {
	var out []*model.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Profile, error) {
			var p profileRow
			if err := row.Scan(p.scanTargets()...); err != nil {
				return nil, err
			}
			return p.toModel(), nil
		})
		return err
	})
	return out, err
}
