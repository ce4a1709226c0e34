package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker implements health checking for the farm store.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{
		db: db,
	}
}

// HealthCheck pings the database and confirms the farms table is queryable.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if d.db == nil {
		return fmt.Errorf("database not configured")
	}
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var one int
	if err := d.db.QueryRowContext(ctx, `SELECT 1 FROM farms LIMIT 1`).Scan(&one); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("farms table: %w", err)
	}
	return nil
}
