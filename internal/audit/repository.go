package audit

import "context"

// Ledger defines the operations of the append-only audit chain. Appends must
// be atomic with respect to each other: two concurrent appends may never
// observe the same tail, or the chain would silently fork. Queries only need
// a consistent snapshot and may run concurrently with appends.
type Ledger interface {
	// Append validates the event, links it to the current chain tail, and
	// persists it. Returns the stored entry including its assigned id.
	Append(ctx context.Context, ev Event) (*Entry, error)

	// Tail returns the entry with the greatest id, or nil when the ledger
	// is empty.
	Tail(ctx context.Context) (*Entry, error)

	// ByDocument returns entries for a document ordered by created_at
	// ascending (chronological for display). A limit <= 0 applies
	// DefaultQueryLimit. Never used for chain verification.
	ByDocument(ctx context.Context, documentID int64, limit int) ([]Entry, error)

	// ByUser returns entries for a user ordered by created_at descending
	// (most recent first). The opposite direction from ByDocument is a
	// product decision, not an accident. A limit <= 0 applies
	// DefaultQueryLimit.
	ByUser(ctx context.Context, userID int64, limit int) ([]Entry, error)

	// Range returns entries with id in the inclusive bounds, ordered by id
	// ascending. A nil bound is unbounded on that side. This is the only
	// ordering valid for chain verification.
	Range(ctx context.Context, startID, endID *int64) ([]Entry, error)
}

// normalizeLimit applies DefaultQueryLimit to non-positive limits so every
// Ledger implementation caps queries the same way.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return limit
}
