package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ExportFormat defines supported export formats.
type ExportFormat string

const (
	// ExportFormatCSV exports the trail as comma-separated values.
	ExportFormatCSV ExportFormat = "csv"
	// ExportFormatJSON exports the trail as a self-contained JSON document.
	ExportFormatJSON ExportFormat = "json"
)

// TrailExport is the evidentiary export document: a self-contained
// representation of an entry sequence suitable for off-system storage or
// submission as evidence. It carries both digests for every entry so the
// chain can be re-verified without access to the ledger.
type TrailExport struct {
	ExportTimestamp string        `json:"export_timestamp"`
	EntryCount      int           `json:"entry_count"`
	Entries         []ExportEntry `json:"entries"`
}

// ExportEntry is one entry in the export document. Metadata is decoded back
// into structured form for readability; the user agent is not exported.
type ExportEntry struct {
	ID           int64          `json:"id"`
	EventType    string         `json:"event_type"`
	Description  string         `json:"description"`
	UserID       *int64         `json:"user_id"`
	DocumentID   *int64         `json:"document_id"`
	Metadata     map[string]any `json:"metadata"`
	IPAddress    *string        `json:"ip_address"`
	PreviousHash string         `json:"previous_hash"`
	EntryHash    string         `json:"entry_hash"`
	CreatedAt    string         `json:"created_at"`
}

// BuildTrailExport assembles the export document for an entry sequence.
// Pure function of its inputs; it never touches the ledger. The export
// timestamp is passed in so callers control the clock.
func BuildTrailExport(entries []Entry, exportedAt time.Time) (*TrailExport, error) {
	doc := &TrailExport{
		ExportTimestamp: exportedAt.UTC().Format(HashTimestampFormat),
		EntryCount:      len(entries),
		Entries:         make([]ExportEntry, len(entries)),
	}

	for i := range entries {
		e := &entries[i]
		metadata, err := e.Metadata()
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		doc.Entries[i] = ExportEntry{
			ID:           e.ID,
			EventType:    e.EventType,
			Description:  e.Description,
			UserID:       e.UserID,
			DocumentID:   e.DocumentID,
			Metadata:     metadata,
			IPAddress:    e.IPAddress,
			PreviousHash: e.PreviousHash,
			EntryHash:    e.EntryHash,
			CreatedAt:    e.CreatedAt.UTC().Format(HashTimestampFormat),
		}
	}

	return doc, nil
}

// ExportTrail renders an entry sequence in the requested format.
func ExportTrail(entries []Entry, format ExportFormat, exportedAt time.Time) ([]byte, error) {
	switch format {
	case ExportFormatJSON:
		doc, err := BuildTrailExport(entries, exportedAt)
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return data, nil
	case ExportFormatCSV:
		return exportToCSV(entries)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// ExportFilename returns the download filename for a document's trail export,
// e.g. AuditTrail_QSL-000042.json.
func ExportFilename(documentID int64, format ExportFormat) string {
	return fmt.Sprintf("AuditTrail_QSL-%06d.%s", documentID, format)
}

// exportToCSV renders the trail as CSV with a fixed header row. The metadata
// column carries the canonical metadata document verbatim.
func exportToCSV(entries []Entry) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	header := []string{
		"ID",
		"Event Type",
		"Description",
		"User ID",
		"Document ID",
		"Metadata",
		"IP Address",
		"Previous Hash",
		"Entry Hash",
		"Created At (UTC)",
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.EventType,
			e.Description,
			optionalIntColumn(e.UserID),
			optionalIntColumn(e.DocumentID),
			optionalStringColumn(e.MetadataJSON),
			optionalStringColumn(e.IPAddress),
			e.PreviousHash,
			e.EntryHash,
			e.CreatedAt.UTC().Format(HashTimestampFormat),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func optionalIntColumn(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}

func optionalStringColumn(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
