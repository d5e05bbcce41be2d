// Package idempotency provides replay protection for the append endpoint.
// A client that retries a failed POST with the same Idempotency-Key gets the
// original response back instead of appending a duplicate ledger entry.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Status constants for idempotency keys.
//
// StatusCompleted indicates that the request has finished and a stable
// response has been persisted. StatusProcessing is reserved for marking a key
// while the first request is still in flight; it appears in the database
// CHECK constraint and must stay in sync with the migrations.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when attempting to create a duplicate key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is invalid.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds maximum length.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// Key represents a stored idempotency key with its cached response.
type Key struct {
	Key                string    `json:"key"`
	Method             string    `json:"method"`
	Route              string    `json:"route"`
	CreatedAt          time.Time `json:"created_at"`
	EntryID            *int64    `json:"entry_id,omitempty"` // ledger entry created by the original request
	ResponseHash       string    `json:"response_hash"`
	Status             string    `json:"status"`
	ResponseBody       string    `json:"response_body"`
	ResponseStatusCode int       `json:"response_status_code"`
}

// ValidateKey checks if an idempotency key is valid.
// Returns ErrInvalidKey for an empty key, ErrKeyTooLong past MaxKeyLength.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// ComputeResponseHash computes a SHA-256 hash of the response body, used to
// verify cached-response integrity on replay.
func ComputeResponseHash(responseBody string) string {
	hash := sha256.Sum256([]byte(responseBody))
	return hex.EncodeToString(hash[:])
}

// Store defines methods for idempotency key persistence.
type Store interface {
	// Get retrieves an idempotency key by its key value.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (*Key, error)

	// Put saves a new idempotency key.
	// Returns ErrKeyExists if the key already exists.
	Put(ctx context.Context, record *Key) error

	// DeleteOlderThan removes keys older than the given duration, returning
	// the number deleted. Used by the cleanup job to bound storage growth.
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
