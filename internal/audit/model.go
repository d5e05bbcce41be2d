// Package audit provides the tamper-evident audit ledger for QuickServe Legal.
// Every legally significant event (document service, signing, certificate
// changes, branch processing) is recorded as an immutable entry linked to its
// predecessor by a SHA-256 hash chain, so any after-the-fact modification of
// stored records can be detected by re-verification.
package audit

import (
	"errors"
	"time"
	"unicode/utf8"
)

// MaxUserAgentLength is the maximum number of characters stored for a client
// user agent. Longer values are silently truncated, not rejected. The user
// agent is informational only and is never part of the hash payload.
const MaxUserAgentLength = 500

// DefaultQueryLimit caps trail queries when the caller does not supply a limit.
const DefaultQueryLimit = 100

var (
	// ErrNilLedger is returned when a nil ledger is passed to logging functions.
	ErrNilLedger = errors.New("audit ledger cannot be nil")
	// ErrEventTypeRequired is returned when an event is appended without an event type.
	ErrEventTypeRequired = errors.New("event type cannot be empty")
	// ErrDescriptionRequired is returned when an event is appended without a description.
	ErrDescriptionRequired = errors.New("description cannot be empty")
)

// Entry is one immutable record in the audit ledger. Entries are created
// exactly once by Append and are never updated or deleted; the id assigned by
// the storage layer defines the canonical chain order.
type Entry struct {
	ID          int64  `json:"id"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`

	// Optional references to other entities. Informational only; the ledger
	// does not enforce referential integrity.
	UserID     *int64 `json:"user_id"`
	DocumentID *int64 `json:"document_id"`

	// MetadataJSON holds the canonical (key-sorted, compact) serialization of
	// the caller-supplied metadata, exactly as it was hashed.
	MetadataJSON *string `json:"metadata_json,omitempty"`

	IPAddress *string `json:"ip_address,omitempty"`
	UserAgent *string `json:"user_agent,omitempty"`

	// PreviousHash is the EntryHash of the chain tail at append time.
	// The empty string is the genesis sentinel for the first entry.
	PreviousHash string `json:"previous_hash"`
	// EntryHash is the SHA-256 digest of this entry's hashed fields plus
	// PreviousHash. Computed once at creation, never recomputed in place.
	EntryHash string `json:"entry_hash"`

	// CreatedAt is captured before hashing and stored at microsecond
	// precision, UTC, so stored rows re-verify exactly as hashed.
	CreatedAt time.Time `json:"created_at"`
}

// Event is the input for appending one entry to the ledger.
// EventType and Description are required; everything else is optional.
// Empty strings for IPAddress and UserAgent mean "not supplied".
type Event struct {
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	UserID      *int64         `json:"user_id,omitempty"`
	DocumentID  *int64         `json:"document_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
}

// Validate checks the required fields of an event. It is called before any
// storage interaction so that invalid events are never partially persisted.
func (ev Event) Validate() error {
	if ev.EventType == "" {
		return ErrEventTypeRequired
	}
	if ev.Description == "" {
		return ErrDescriptionRequired
	}
	return nil
}

// newEntry validates the event, canonicalizes its metadata, truncates the user
// agent, stamps the creation time, and computes the entry digest over the
// supplied previous hash. The returned entry has no ID; the storage layer
// assigns it at insertion.
func newEntry(ev Event, previousHash string, now time.Time) (*Entry, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	e := &Entry{
		EventType:    ev.EventType,
		Description:  ev.Description,
		PreviousHash: previousHash,
		CreatedAt:    now.UTC().Truncate(time.Microsecond),
	}

	if ev.UserID != nil {
		id := *ev.UserID
		e.UserID = &id
	}
	if ev.DocumentID != nil {
		id := *ev.DocumentID
		e.DocumentID = &id
	}

	if ev.Metadata != nil {
		canonical, err := CanonicalMetadata(ev.Metadata)
		if err != nil {
			return nil, err
		}
		e.MetadataJSON = &canonical
	}

	if ev.IPAddress != "" {
		ip := ev.IPAddress
		e.IPAddress = &ip
	}
	if ev.UserAgent != "" {
		ua := truncateUserAgent(ev.UserAgent)
		e.UserAgent = &ua
	}

	e.EntryHash = ComputeEntryHash(e)
	return e, nil
}

// truncateUserAgent clips a user agent to MaxUserAgentLength characters.
// Truncation counts characters, not bytes, so multibyte runes are never split.
func truncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	return string([]rune(ua)[:MaxUserAgentLength])
}
