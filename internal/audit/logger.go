package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// LogEvent records a single event on the ledger.
//
// Error handling is fail-closed: if the append fails the error is returned to
// the caller rather than swallowed. A legal event that cannot be recorded must
// not be treated as recorded.
func LogEvent(ctx context.Context, ledger Ledger, ev Event) (*Entry, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}
	return ledger.Append(ctx, ev)
}

// LogDocumentEvent records a document-related event, linking it to both the
// document and the acting user.
func LogDocumentEvent(ctx context.Context, ledger Ledger, eventType string, documentID, userID int64, description string, metadata map[string]any) (*Entry, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}
	return ledger.Append(ctx, Event{
		EventType:   eventType,
		Description: description,
		UserID:      &userID,
		DocumentID:  &documentID,
		Metadata:    metadata,
	})
}

// LogSigningEvent records a signing-related event. Certificate and signature
// ids are folded into metadata when non-zero. When the caller supplies no
// description a generic one is synthesized, since appends reject empty
// descriptions.
func LogSigningEvent(ctx context.Context, ledger Ledger, eventType string, documentID, userID int64, certificateID, signatureID int64, description, ipAddress string) (*Entry, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}

	var metadata map[string]any
	if certificateID != 0 || signatureID != 0 {
		metadata = make(map[string]any)
		if certificateID != 0 {
			metadata["certificate_id"] = certificateID
		}
		if signatureID != 0 {
			metadata["signature_id"] = signatureID
		}
	}

	if description == "" {
		description = fmt.Sprintf("%s for document %d", eventType, documentID)
	}

	return ledger.Append(ctx, Event{
		EventType:   eventType,
		Description: description,
		UserID:      &userID,
		DocumentID:  &documentID,
		Metadata:    metadata,
		IPAddress:   ipAddress,
	})
}

// LogEventFromRequest records an event enriched with HTTP request metadata:
// the client IP (X-Forwarded-For, then X-Real-IP, then RemoteAddr) and the
// User-Agent header. Values already set on the event are left alone.
func LogEventFromRequest(r *http.Request, ledger Ledger, ev Event) (*Entry, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}

	if ev.IPAddress == "" {
		ev.IPAddress = extractIPAddress(r)
	}
	if ev.UserAgent == "" {
		ev.UserAgent = r.UserAgent()
	}

	return ledger.Append(r.Context(), ev)
}

// extractIPAddress extracts the client IP address from an HTTP request,
// checking X-Forwarded-For, X-Real-IP, and RemoteAddr in that order. Any port
// suffix is stripped so the value fits the stored address format.
func extractIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Use the first IP in the chain, trimming whitespace per RFC 7239.
		firstIP := xff
		if idx := strings.Index(xff, ","); idx != -1 {
			firstIP = xff[:idx]
		}
		firstIP = strings.TrimSpace(firstIP)
		if firstIP != "" {
			return stripPort(firstIP)
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return stripPort(xri)
	}

	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// Address may not carry a port.
		return addr
	}
	return host
}
