package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakeClock returns a now func that advances one millisecond per call, so
// created_at ordering in tests is deterministic.
func fakeClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Millisecond)
		return current
	}
}

func int64Ptr(n int64) *int64 {
	return &n
}

func TestMemoryLedger_HashChain(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	// Append first entry
	entry1, err := ledger.Append(ctx, Event{
		EventType:   EventDocumentUploaded,
		Description: "Summons uploaded",
		DocumentID:  int64Ptr(1),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// First entry carries the genesis sentinel
	if entry1.PreviousHash != "" {
		t.Errorf("First entry PreviousHash = %q, want empty string", entry1.PreviousHash)
	}
	if entry1.ID != 1 {
		t.Errorf("First entry ID = %d, want 1", entry1.ID)
	}
	if entry1.EntryHash == "" {
		t.Error("First entry EntryHash should not be empty")
	}

	// Append second entry
	entry2, err := ledger.Append(ctx, Event{
		EventType:   EventDocumentServed,
		Description: "Summons served",
		DocumentID:  int64Ptr(1),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Second entry links to the first
	if entry2.PreviousHash != entry1.EntryHash {
		t.Errorf("Second entry PreviousHash = %q, want %q", entry2.PreviousHash, entry1.EntryHash)
	}
	if entry2.ID != 2 {
		t.Errorf("Second entry ID = %d, want 2", entry2.ID)
	}

	// Append third entry
	entry3, err := ledger.Append(ctx, Event{
		EventType:   EventSignatureCompleted,
		Description: "Return of service signed",
		DocumentID:  int64Ptr(1),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if entry3.PreviousHash != entry2.EntryHash {
		t.Errorf("Third entry PreviousHash = %q, want %q", entry3.PreviousHash, entry2.EntryHash)
	}
}

func TestMemoryLedger_Tail(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	// Empty ledger has no tail
	tail, err := ledger.Tail(ctx)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if tail != nil {
		t.Errorf("Tail() on empty ledger = %+v, want nil", tail)
	}

	// Append two entries
	_, err = ledger.Append(ctx, Event{EventType: EventUserLogin, Description: "login"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	entry2, err := ledger.Append(ctx, Event{EventType: EventUserLogout, Description: "logout"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	tail, err = ledger.Tail(ctx)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if tail == nil {
		t.Fatal("Tail() = nil after appends, want most recent entry")
	}
	if tail.ID != entry2.ID {
		t.Errorf("Tail() ID = %d, want %d", tail.ID, entry2.ID)
	}
	if tail.EntryHash != entry2.EntryHash {
		t.Errorf("Tail() EntryHash = %q, want %q", tail.EntryHash, entry2.EntryHash)
	}
}

func TestMemoryLedger_Append_Validation(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	_, err := ledger.Append(ctx, Event{Description: "no event type"})
	if !errors.Is(err, ErrEventTypeRequired) {
		t.Errorf("Append() without event type: error = %v, want ErrEventTypeRequired", err)
	}

	_, err = ledger.Append(ctx, Event{EventType: EventUserLogin})
	if !errors.Is(err, ErrDescriptionRequired) {
		t.Errorf("Append() without description: error = %v, want ErrDescriptionRequired", err)
	}

	// Failed appends must not extend the chain
	tail, err := ledger.Tail(ctx)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if tail != nil {
		t.Errorf("Tail() = %+v after rejected appends, want nil", tail)
	}
}

func TestMemoryLedger_Append_UserAgentTruncation(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	longUA := strings.Repeat("a", 600)
	entry, err := ledger.Append(ctx, Event{
		EventType:   EventUserLogin,
		Description: "login",
		UserAgent:   longUA,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if entry.UserAgent == nil {
		t.Fatal("Append() UserAgent = nil, want truncated value")
	}
	if got := len([]rune(*entry.UserAgent)); got != MaxUserAgentLength {
		t.Errorf("Append() UserAgent length = %d runes, want %d", got, MaxUserAgentLength)
	}

	// Multibyte runes are counted as characters, not bytes
	multibyte := strings.Repeat("é", 600)
	entry2, err := ledger.Append(ctx, Event{
		EventType:   EventUserLogin,
		Description: "login",
		UserAgent:   multibyte,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if got := len([]rune(*entry2.UserAgent)); got != MaxUserAgentLength {
		t.Errorf("Append() multibyte UserAgent length = %d runes, want %d", got, MaxUserAgentLength)
	}

	// A user agent within the limit is stored untouched
	entry3, err := ledger.Append(ctx, Event{
		EventType:   EventUserLogin,
		Description: "login",
		UserAgent:   "Mozilla/5.0",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if *entry3.UserAgent != "Mozilla/5.0" {
		t.Errorf("Append() UserAgent = %q, want Mozilla/5.0", *entry3.UserAgent)
	}
}

func TestMemoryLedger_Append_OptionalFields(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	// Empty strings mean "not supplied" and are stored as nil
	entry, err := ledger.Append(ctx, Event{
		EventType:   EventProofOfServiceGenerated,
		Description: "Proof of service generated",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if entry.IPAddress != nil {
		t.Errorf("Append() IPAddress = %q, want nil", *entry.IPAddress)
	}
	if entry.UserAgent != nil {
		t.Errorf("Append() UserAgent = %q, want nil", *entry.UserAgent)
	}
	if entry.MetadataJSON != nil {
		t.Errorf("Append() MetadataJSON = %q, want nil", *entry.MetadataJSON)
	}
	if entry.UserID != nil {
		t.Errorf("Append() UserID = %d, want nil", *entry.UserID)
	}
	if entry.DocumentID != nil {
		t.Errorf("Append() DocumentID = %d, want nil", *entry.DocumentID)
	}
}

func TestMemoryLedger_Append_CanonicalizesMetadata(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	entry, err := ledger.Append(ctx, Event{
		EventType:   EventDocumentServed,
		Description: "Served",
		Metadata: map[string]any{
			"server_name": "Deputy Jones",
			"attempts":    2,
		},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if entry.MetadataJSON == nil {
		t.Fatal("Append() MetadataJSON = nil, want canonical document")
	}
	want := `{"attempts":2,"server_name":"Deputy Jones"}`
	if *entry.MetadataJSON != want {
		t.Errorf("Append() MetadataJSON = %q, want %q", *entry.MetadataJSON, want)
	}
}

func TestMemoryLedger_ByDocument(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.now = fakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, Event{
			EventType:   EventDocumentServed,
			Description: "Service attempt",
			DocumentID:  int64Ptr(10),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	_, err := ledger.Append(ctx, Event{
		EventType:   EventDocumentUploaded,
		Description: "Unrelated document",
		DocumentID:  int64Ptr(99),
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	results, err := ledger.ByDocument(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ByDocument() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("ByDocument() returned %d entries, want 3", len(results))
	}

	// Document trails read oldest first
	for i := 1; i < len(results); i++ {
		if results[i].CreatedAt.Before(results[i-1].CreatedAt) {
			t.Errorf("ByDocument() results not in ascending created_at order at index %d", i)
		}
	}
	for _, e := range results {
		if e.DocumentID == nil || *e.DocumentID != 10 {
			t.Errorf("ByDocument() returned entry for wrong document: %+v", e.DocumentID)
		}
	}
}

func TestMemoryLedger_ByUser(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.now = fakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, Event{
			EventType:   EventUserLogin,
			Description: "login",
			UserID:      int64Ptr(5),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	results, err := ledger.ByUser(ctx, 5, 0)
	if err != nil {
		t.Fatalf("ByUser() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("ByUser() returned %d entries, want 3", len(results))
	}

	// User activity reads newest first, the opposite of document trails
	for i := 1; i < len(results); i++ {
		if results[i].CreatedAt.After(results[i-1].CreatedAt) {
			t.Errorf("ByUser() results not in descending created_at order at index %d", i)
		}
	}
}

func TestMemoryLedger_QueryLimits(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	for i := 0; i < DefaultQueryLimit+5; i++ {
		_, err := ledger.Append(ctx, Event{
			EventType:   EventDocumentDownloaded,
			Description: "download",
			DocumentID:  int64Ptr(1),
			UserID:      int64Ptr(1),
		})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	// Limit 0 applies the default cap
	results, err := ledger.ByDocument(ctx, 1, 0)
	if err != nil {
		t.Fatalf("ByDocument() error = %v", err)
	}
	if len(results) != DefaultQueryLimit {
		t.Errorf("ByDocument() with limit 0 returned %d entries, want %d", len(results), DefaultQueryLimit)
	}

	// Explicit limit is honored
	results, err = ledger.ByUser(ctx, 1, 7)
	if err != nil {
		t.Fatalf("ByUser() error = %v", err)
	}
	if len(results) != 7 {
		t.Errorf("ByUser() with limit 7 returned %d entries, want 7", len(results))
	}
}

func TestMemoryLedger_Range(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ledger.Append(ctx, Event{EventType: EventUserLogin, Description: "login"})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	// Inclusive bounds
	results, err := ledger.Range(ctx, int64Ptr(2), int64Ptr(4))
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Range(2, 4) returned %d entries, want 3", len(results))
	}
	if results[0].ID != 2 || results[2].ID != 4 {
		t.Errorf("Range(2, 4) IDs = %d..%d, want 2..4", results[0].ID, results[2].ID)
	}

	// Nil bounds are unbounded
	results, err = ledger.Range(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(results) != 5 {
		t.Errorf("Range(nil, nil) returned %d entries, want 5", len(results))
	}

	results, err = ledger.Range(ctx, int64Ptr(4), nil)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Range(4, nil) returned %d entries, want 2", len(results))
	}
}

func TestMemoryLedger_ThreadSafety(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	// Run concurrent appends
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := ledger.Append(ctx, Event{
				EventType:   EventDocumentDownloaded,
				Description: "concurrent download",
				DocumentID:  int64Ptr(1),
			})
			if err != nil {
				t.Errorf("Append() error = %v", err)
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Every append must have observed a distinct tail
	entries, err := ledger.Range(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("Expected 10 entries after concurrent appends, got %d", len(entries))
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.PreviousHash] {
			t.Errorf("Two entries share previous_hash %q, chain forked", e.PreviousHash)
		}
		seen[e.PreviousHash] = true
	}

	// The resulting chain must verify end to end
	result, err := VerifyChain(ctx, ledger, nil, nil)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if !result.Valid {
		t.Errorf("VerifyChain() after concurrent appends: invalid chain: %s", result.Error)
	}
}

func TestMemoryLedger_Append_ReturnsCopy(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	entry, err := ledger.Append(ctx, Event{EventType: EventUserLogin, Description: "login"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Mutating the returned entry must not reach stored state
	entry.Description = "mutated"

	result, err := VerifyChain(ctx, ledger, nil, nil)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if !result.Valid {
		t.Error("VerifyChain() invalid after mutating a returned copy; stored state was shared")
	}
}
