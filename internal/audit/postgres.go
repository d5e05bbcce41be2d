package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/anphiad-sys/QuickServeLegal/internal/tracing"
)

// appendRetries bounds how many times a conflicting append is retried before
// the error is surfaced. Conflicts only occur when two appends race for the
// same tail, so contention is short-lived.
const appendRetries = 3

const entryColumns = `id, event_type, description, user_id, document_id, metadata_json, ip_address, user_agent, previous_hash, entry_hash, created_at`

// PostgresLedger implements Ledger backed by PostgreSQL.
//
// Append runs the tail read and the insert inside one serializable
// transaction, so concurrent appends cannot both observe the same tail. The
// UNIQUE constraint on previous_hash is the hard backstop: even if isolation
// were misconfigured, a forked chain cannot be committed.
type PostgresLedger struct {
	db     *sql.DB
	logger *slog.Logger

	now func() time.Time // overridable in tests
}

// NewPostgresLedger creates a ledger over an open database handle.
func NewPostgresLedger(db *sql.DB, logger *slog.Logger) *PostgresLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedger{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Append validates, links, and persists a new entry. Serialization conflicts
// with a concurrent append are retried a bounded number of times.
func (l *PostgresLedger) Append(ctx context.Context, ev Event) (*Entry, error) {
	// Reject invalid input before touching storage.
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= appendRetries; attempt++ {
		entry, err := l.tryAppend(ctx, ev)
		if err == nil {
			return entry, nil
		}
		if !isAppendConflict(err) {
			return nil, err
		}
		lastErr = err
		l.logger.WarnContext(ctx, "audit append conflicted with concurrent writer, retrying",
			"attempt", attempt+1,
			"error", err,
		)
	}
	return nil, fmt.Errorf("append conflicted %d times: %w", appendRetries+1, lastErr)
}

func (l *PostgresLedger) tryAppend(ctx context.Context, ev Event) (entry *Entry, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_entries", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin append transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			l.logger.ErrorContext(ctx, "failed to rollback append transaction", "error", rbErr)
		}
	}()

	previousHash := ""
	err = tx.QueryRowContext(ctx,
		`SELECT entry_hash FROM audit_entries ORDER BY id DESC LIMIT 1`,
	).Scan(&previousHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	entry, err = newEntry(ev, previousHash, l.now())
	if err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO audit_entries
			(event_type, description, user_id, document_id, metadata_json, ip_address, user_agent, previous_hash, entry_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		entry.EventType,
		entry.Description,
		entry.UserID,
		entry.DocumentID,
		entry.MetadataJSON,
		entry.IPAddress,
		entry.UserAgent,
		entry.PreviousHash,
		entry.EntryHash,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit entry: %w", err)
	}

	return entry, nil
}

// Tail returns the entry with the greatest id, or nil when the ledger is empty.
func (l *PostgresLedger) Tail(ctx context.Context) (entry *Entry, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_entries", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	row := l.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries ORDER BY id DESC LIMIT 1`,
	)
	entry, err = scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}
	return entry, nil
}

// ByDocument returns entries for a document, oldest first.
func (l *PostgresLedger) ByDocument(ctx context.Context, documentID int64, limit int) ([]Entry, error) {
	return l.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM audit_entries
		 WHERE document_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		documentID, normalizeLimit(limit))
}

// ByUser returns entries for a user, newest first.
func (l *PostgresLedger) ByUser(ctx context.Context, userID int64, limit int) ([]Entry, error) {
	return l.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM audit_entries
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, normalizeLimit(limit))
}

// Range returns entries within the inclusive id bounds, ascending by id.
func (l *PostgresLedger) Range(ctx context.Context, startID, endID *int64) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM audit_entries`
	var args []any

	switch {
	case startID != nil && endID != nil:
		query += ` WHERE id >= $1 AND id <= $2`
		args = append(args, *startID, *endID)
	case startID != nil:
		query += ` WHERE id >= $1`
		args = append(args, *startID)
	case endID != nil:
		query += ` WHERE id <= $1`
		args = append(args, *endID)
	}
	query += ` ORDER BY id ASC`

	return l.queryEntries(ctx, query, args...)
}

func (l *PostgresLedger) queryEntries(ctx context.Context, query string, args ...any) (entries []Entry, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_entries", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			l.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan audit entry: %w", scanErr)
		}
		entries = append(entries, *entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var userID, documentID sql.NullInt64
	var metadataJSON, ipAddress, userAgent sql.NullString

	err := s.Scan(
		&e.ID,
		&e.EventType,
		&e.Description,
		&userID,
		&documentID,
		&metadataJSON,
		&ipAddress,
		&userAgent,
		&e.PreviousHash,
		&e.EntryHash,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		e.UserID = &userID.Int64
	}
	if documentID.Valid {
		e.DocumentID = &documentID.Int64
	}
	if metadataJSON.Valid {
		e.MetadataJSON = &metadataJSON.String
	}
	if ipAddress.Valid {
		e.IPAddress = &ipAddress.String
	}
	if userAgent.Valid {
		e.UserAgent = &userAgent.String
	}

	// Digests were computed over UTC timestamps; normalize whatever location
	// the driver handed back so re-verification sees identical bytes.
	e.CreatedAt = e.CreatedAt.UTC()

	return &e, nil
}

// isAppendConflict reports whether an append failed only because it raced a
// concurrent append: a serialization failure (40001) or the previous_hash
// uniqueness constraint (23505) firing when both writers read the same tail.
func isAppendConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001":
		return true
	case "23505":
		return pqErr.Constraint == "audit_entries_previous_hash_key"
	}
	return false
}
