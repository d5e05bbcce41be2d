package audit

import (
	"context"
	"fmt"
)

// VerifyResult reports the outcome of a chain-integrity scan. A broken chain
// is an expected, actionable finding the caller must branch on, so it is
// returned as data rather than an error; the error return of VerifyChain is
// reserved for storage failures.
type VerifyResult struct {
	Valid          bool   `json:"valid"`
	EntriesChecked int    `json:"entries_checked"`
	FirstInvalidID *int64 `json:"first_invalid_id"`
	Error          string `json:"error,omitempty"`
}

// VerifyChain replays the hash chain over the inclusive id range (nil bounds
// are unbounded) and reports the first violation found.
//
// For every entry in ascending id order the entry's digest is recomputed from
// its stored fields and compared to the stored value; a mismatch means the
// entry's own data was altered after creation. For every entry after the
// first one examined, the stored previous hash is compared to the
// predecessor's digest; a mismatch means an entry was deleted, reordered, or
// inserted into the middle of the chain. The scan short-circuits at the first
// violation and never mutates anything. An empty range is vacuously valid.
func VerifyChain(ctx context.Context, ledger Ledger, startID, endID *int64) (*VerifyResult, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}

	entries, err := ledger.Range(ctx, startID, endID)
	if err != nil {
		return nil, fmt.Errorf("load entries for verification: %w", err)
	}

	result := &VerifyResult{Valid: true}
	previousHash := ""

	for i := range entries {
		e := &entries[i]
		result.EntriesChecked++

		if !e.VerifyHash() {
			result.Valid = false
			result.FirstInvalidID = &e.ID
			result.Error = fmt.Sprintf("Entry %d hash mismatch - data may have been tampered", e.ID)
			return result, nil
		}

		// The first entry examined has no predecessor in this walk, so its
		// linkage cannot be checked; a ranged scan starts mid-chain.
		if i > 0 && e.PreviousHash != previousHash {
			result.Valid = false
			result.FirstInvalidID = &e.ID
			result.Error = fmt.Sprintf("Entry %d chain broken - previous_hash mismatch", e.ID)
			return result, nil
		}

		previousHash = e.EntryHash
	}

	return result, nil
}
