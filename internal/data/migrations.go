package data

import (
	"context"
	"database/sql"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/migrate"
)

// RunMigrations applies the embedded schema and returns the versions it added.
func RunMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Apply(ctx, db)
}
