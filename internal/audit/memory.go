package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryLedger is an in-memory implementation of Ledger used for tests,
// development, and the quickstart example. A single mutex serializes appends,
// which directly satisfies the single-writer requirement of the chain.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64

	now func() time.Time // overridable in tests
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		nextID: 1,
		now:    time.Now,
	}
}

// Append links and stores a new entry. The write lock is held across the
// tail read, digest computation, and insert, so concurrent appends can never
// produce entries claiming the same previous hash.
func (l *MemoryLedger) Append(_ context.Context, ev Event) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	previousHash := ""
	if n := len(l.entries); n > 0 {
		previousHash = l.entries[n-1].EntryHash
	}

	e, err := newEntry(ev, previousHash, l.now())
	if err != nil {
		return nil, err
	}
	e.ID = l.nextID
	l.nextID++

	l.entries = append(l.entries, *e)

	// Return a copy to prevent external modification of stored state.
	entry := *e
	return &entry, nil
}

// Tail returns a copy of the most recent entry, or nil when empty.
func (l *MemoryLedger) Tail(_ context.Context) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return nil, nil
	}
	entry := l.entries[len(l.entries)-1]
	return &entry, nil
}

// ByDocument returns entries for a document, oldest first.
func (l *MemoryLedger) ByDocument(_ context.Context, documentID int64, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for _, e := range l.entries {
		if e.DocumentID != nil && *e.DocumentID == documentID {
			results = append(results, e)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return capLimit(results, limit), nil
}

// ByUser returns entries for a user, newest first.
func (l *MemoryLedger) ByUser(_ context.Context, userID int64, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for _, e := range l.entries {
		if e.UserID != nil && *e.UserID == userID {
			results = append(results, e)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return capLimit(results, limit), nil
}

// Range returns entries within the inclusive id bounds, ascending by id.
func (l *MemoryLedger) Range(_ context.Context, startID, endID *int64) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var results []Entry
	for _, e := range l.entries {
		if startID != nil && e.ID < *startID {
			continue
		}
		if endID != nil && e.ID > *endID {
			continue
		}
		results = append(results, e)
	}
	return results, nil
}

func capLimit(entries []Entry, limit int) []Entry {
	limit = normalizeLimit(limit)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// tamper overwrites a stored entry in place, bypassing Append. Test-only:
// simulates the out-of-band modification the chain exists to detect.
func (l *MemoryLedger) tamper(id int64, mutate func(*Entry)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			mutate(&l.entries[i])
			return true
		}
	}
	return false
}

// remove deletes a stored entry in place, bypassing the append-only contract.
// Test-only: simulates structural tampering (a dropped chain link).
func (l *MemoryLedger) remove(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}
