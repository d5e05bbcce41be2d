package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/anphiad-sys/QuickServeLegal/internal/archive"
	"github.com/anphiad-sys/QuickServeLegal/internal/audit"
	"github.com/anphiad-sys/QuickServeLegal/internal/middleware"
	"github.com/anphiad-sys/QuickServeLegal/internal/validate"
)

// exportQueryLimit caps how many entries an evidentiary export may cover.
// Far above DefaultQueryLimit: an export must carry the whole trail, and a
// single document never accumulates anywhere near this many events.
const exportQueryLimit = 10000

// AppendEventRequest represents the request body for appending an audit event.
// IP address and user agent are never accepted from the body; they are taken
// from the request itself.
type AppendEventRequest struct {
	EventType   string         `json:"event_type"`
	Description string         `json:"description"`
	UserID      *int64         `json:"user_id,omitempty"`
	DocumentID  *int64         `json:"document_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TrailResponse represents a document or user trail.
type TrailResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`

	// Integrity summary, present on document trails only. Covers the
	// per-entry digests of the returned entries; full chain linkage is the
	// verify endpoint's job.
	IntegrityValid *bool  `json:"integrity_valid,omitempty"`
	IntegrityError string `json:"integrity_error,omitempty"`
}

// AuditHandlers holds dependencies for the audit ledger HTTP handlers.
type AuditHandlers struct {
	ledger  audit.Ledger
	archive *archive.Service // nil when archival is not configured
	metrics *audit.Metrics   // nil in tests
}

// NewAuditHandlers creates a new AuditHandlers instance.
func NewAuditHandlers(ledger audit.Ledger, archiveSvc *archive.Service, metrics *audit.Metrics) *AuditHandlers {
	return &AuditHandlers{
		ledger:  ledger,
		archive: archiveSvc,
		metrics: metrics,
	}
}

// AppendEvent handles POST /audit/events - appends one entry to the ledger.
func (h *AuditHandlers) AppendEvent(w http.ResponseWriter, r *http.Request) {
	var req AppendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	eventType, err := validate.EventType(req.EventType)
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "event_type is invalid: "+err.Error())
		return
	}
	description, err := validate.EventDescription(req.Description)
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "description is invalid: "+err.Error())
		return
	}

	ev := audit.Event{
		EventType:   eventType,
		Description: description,
		UserID:      req.UserID,
		DocumentID:  req.DocumentID,
		Metadata:    req.Metadata,
	}

	// Default the actor to the authenticated user when the body omits one.
	if ev.UserID == nil {
		if userID, ok := middleware.GetUserID(r.Context()); ok {
			ev.UserID = &userID
		}
	}

	start := time.Now()
	entry, err := audit.LogEventFromRequest(r, h.ledger, ev)
	if h.metrics != nil {
		h.metrics.ObserveAppend(eventType, err, time.Since(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, audit.ErrEventTypeRequired) || errors.Is(err, audit.ErrDescriptionRequired) {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "failed to append audit event", "event_type", req.EventType, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to record audit event")
		return
	}

	writeJSON(w, r, http.StatusCreated, entry)
}

// DocumentTrail handles GET /audit/documents/{id} - the document's trail in
// chronological order with a per-entry integrity summary.
func (h *AuditHandlers) DocumentTrail(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.ledger.ByDocument(r.Context(), documentID, queryLimit(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load document trail", "document_id", documentID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to load audit trail")
		return
	}

	resp := TrailResponse{
		Entries: entries,
		Count:   len(entries),
	}

	valid := true
	for i := range entries {
		if !entries[i].VerifyHash() {
			valid = false
			resp.IntegrityError = "Entry " + strconv.FormatInt(entries[i].ID, 10) + " hash mismatch - data may have been tampered"
			break
		}
	}
	resp.IntegrityValid = &valid

	writeJSON(w, r, http.StatusOK, resp)
}

// DocumentExport handles GET /audit/documents/{id}/export - the evidentiary
// download in JSON (default) or CSV.
func (h *AuditHandlers) DocumentExport(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	format := audit.ExportFormatJSON
	switch r.URL.Query().Get("format") {
	case "", "json":
	case "csv":
		format = audit.ExportFormatCSV
	default:
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "format must be json or csv")
		return
	}

	entries, err := h.ledger.ByDocument(r.Context(), documentID, exportQueryLimit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load trail for export", "document_id", documentID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to load audit trail")
		return
	}

	data, err := audit.ExportTrail(entries, format, time.Now())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to render export", "document_id", documentID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to render export")
		return
	}

	if h.metrics != nil {
		h.metrics.IncExport(format)
	}

	contentType := "application/json; charset=utf-8"
	if format == audit.ExportFormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.ExportFilename(documentID, format)+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(r.Context(), "failed to write export", "error", err)
	}
}

// DocumentArchive handles POST /audit/documents/{id}/archive - renders the
// JSON export and uploads it to object storage.
func (h *AuditHandlers) DocumentArchive(w http.ResponseWriter, r *http.Request) {
	documentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if h.archive == nil {
		WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeArchiveDisabled, "Export archival is not configured")
		return
	}

	entries, err := h.ledger.ByDocument(r.Context(), documentID, exportQueryLimit)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load trail for archival", "document_id", documentID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to load audit trail")
		return
	}

	data, err := audit.ExportTrail(entries, audit.ExportFormatJSON, time.Now())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to render export for archival", "document_id", documentID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to render export")
		return
	}

	result, err := h.archive.ArchiveExport(r.Context(), documentID, data)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to archive export", "document_id", documentID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to archive export")
		return
	}

	if h.metrics != nil {
		h.metrics.IncExport(audit.ExportFormatJSON)
	}

	slog.InfoContext(r.Context(), "audit trail archived", "document_id", documentID, "key", result.Key)
	writeJSON(w, r, http.StatusCreated, result)
}

// UserTrail handles GET /audit/users/{id} - the user's trail, most recent
// first.
func (h *AuditHandlers) UserTrail(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	entries, err := h.ledger.ByUser(r.Context(), userID, queryLimit(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load user trail", "user_id", userID, "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to load audit trail")
		return
	}

	writeJSON(w, r, http.StatusOK, TrailResponse{Entries: entries, Count: len(entries)})
}

// Verify handles GET /audit/verify - replays the hash chain over the
// requested id range and reports the outcome.
func (h *AuditHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	startID, ok := optionalQueryID(w, r, "start_id")
	if !ok {
		return
	}
	endID, ok := optionalQueryID(w, r, "end_id")
	if !ok {
		return
	}

	result, err := audit.VerifyChain(r.Context(), h.ledger, startID, endID)
	if h.metrics != nil {
		h.metrics.ObserveVerification(result, err)
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "chain verification failed", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Verification could not be completed")
		return
	}

	if !result.Valid {
		slog.WarnContext(r.Context(), "chain verification found tampering",
			"first_invalid_id", result.FirstInvalidID,
			"entries_checked", result.EntriesChecked,
		)
	}

	writeJSON(w, r, http.StatusOK, result)
}

// TailResponse wraps the chain tail; the entry is null for an empty ledger.
type TailResponse struct {
	Entry *audit.Entry `json:"entry"`
}

// Tail handles GET /audit/tail - the current chain tail.
func (h *AuditHandlers) Tail(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.Tail(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load chain tail", "error", err)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to load chain tail")
		return
	}

	writeJSON(w, r, http.StatusOK, TailResponse{Entry: entry})
}

// pathID parses the named path segment as a positive integer id, writing a
// validation error on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// optionalQueryID parses an optional integer query parameter. Returns
// (nil, true) when the parameter is absent.
func optionalQueryID(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, name+" must be a positive integer")
		return nil, false
	}
	return &id, true
}

// queryLimit parses the ?limit= parameter; 0 lets the ledger apply its
// default.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}
