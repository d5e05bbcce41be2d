// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker implements health checking for the ledger database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database. A failing ping means appends would fail,
// so readiness must report not-ready.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}
