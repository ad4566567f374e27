package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaMissing is reported when the database answers but the items
// migration has not been applied.
var ErrSchemaMissing = errors.New("items table not found; run migrations")

// DBChecker checks that the Postgres signal store is reachable and migrated.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a checker over db.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database, then confirms the items table exists.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}

	var present bool
	if err := d.db.QueryRowContext(ctx, `SELECT to_regclass('items') IS NOT NULL`).Scan(&present); err != nil {
		return fmt.Errorf("postgres schema check: %w", err)
	}
	if !present {
		return ErrSchemaMissing
	}
	return nil
}
