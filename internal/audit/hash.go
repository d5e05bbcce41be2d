package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// HashTimestampFormat is the pinned timestamp representation used inside the
// digest payload and in exports: UTC, exactly six fractional digits, literal
// Z suffix. The fixed fraction width means a timestamp that happens to land on
// a whole second still serializes identically across runs.
const HashTimestampFormat = "2006-01-02T15:04:05.000000Z"

// ComputeEntryHash computes the SHA-256 digest of an entry's hashed fields.
//
// The payload is a versioned, hand-assembled canonical form; changing any rule
// here invalidates every stored digest, so treat this function as a frozen
// contract. The payload is a compact JSON object with keys in byte-sorted
// order:
//
//	{"created_at":...,"description":...,"document_id":...,"event_type":...,
//	 "ip_address":...,"metadata_json":...,"previous_hash":...,"user_id":...}
//
// Absent optional fields serialize as null, PreviousHash defaults to the empty
// string, and CreatedAt uses HashTimestampFormat. The entry's ID, EntryHash,
// and UserAgent are deliberately excluded.
func ComputeEntryHash(e *Entry) string {
	var buf bytes.Buffer
	buf.WriteString(`{"created_at":`)
	appendJSONString(&buf, e.CreatedAt.UTC().Truncate(time.Microsecond).Format(HashTimestampFormat))
	buf.WriteString(`,"description":`)
	appendJSONString(&buf, e.Description)
	buf.WriteString(`,"document_id":`)
	appendOptionalInt(&buf, e.DocumentID)
	buf.WriteString(`,"event_type":`)
	appendJSONString(&buf, e.EventType)
	buf.WriteString(`,"ip_address":`)
	appendOptionalString(&buf, e.IPAddress)
	buf.WriteString(`,"metadata_json":`)
	appendOptionalString(&buf, e.MetadataJSON)
	buf.WriteString(`,"previous_hash":`)
	appendJSONString(&buf, e.PreviousHash)
	buf.WriteString(`,"user_id":`)
	appendOptionalInt(&buf, e.UserID)
	buf.WriteByte('}')

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// VerifyHash recomputes the entry's digest from its stored fields and reports
// whether it matches the stored EntryHash.
func (e *Entry) VerifyHash() bool {
	return ComputeEntryHash(e) == e.EntryHash
}

// CanonicalMetadata serializes caller-supplied metadata into the canonical
// form embedded in the digest payload: recursively key-sorted objects, compact
// separators, and pinned number formatting. Supported value types are nil,
// bool, string, int, int32, int64, float64, json.Number, map[string]any, and
// []any; anything else is a caller error.
func CanonicalMetadata(metadata map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := appendCanonicalValue(&buf, metadata); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Metadata decodes the entry's canonical metadata document back into a map.
// Returns nil when the entry carries no metadata.
func (e *Entry) Metadata() (map[string]any, error) {
	if e.MetadataJSON == nil {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*e.MetadataJSON), &m); err != nil {
		return nil, fmt.Errorf("decode entry metadata: %w", err)
	}
	return m, nil
}

func appendCanonicalValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		appendJSONString(buf, val)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("metadata value %v is not representable in JSON", val)
		}
		buf.Write(strconv.AppendFloat(nil, val, 'g', -1, 64))
	case json.Number:
		buf.WriteString(val.String())
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			appendJSONString(buf, k)
			buf.WriteByte(':')
			if err := appendCanonicalValue(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendCanonicalValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("metadata value of unsupported type %T", v)
	}
	return nil
}

// appendJSONString writes s as a JSON string with minimal escaping: quote,
// backslash, and control characters only. Unlike encoding/json there is no
// HTML escaping, so the output is stable regardless of serializer defaults.
func appendJSONString(buf *bytes.Buffer, s string) {
	const hexDigits = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf.WriteString(`\"`)
		case c == '\\':
			buf.WriteString(`\\`)
		case c == '\n':
			buf.WriteString(`\n`)
		case c == '\r':
			buf.WriteString(`\r`)
		case c == '\t':
			buf.WriteString(`\t`)
		case c < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[c>>4])
			buf.WriteByte(hexDigits[c&0xF])
		default:
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}

func appendOptionalString(buf *bytes.Buffer, s *string) {
	if s == nil {
		buf.WriteString("null")
		return
	}
	appendJSONString(buf, *s)
}

func appendOptionalInt(buf *bytes.Buffer, n *int64) {
	if n == nil {
		buf.WriteString("null")
		return
	}
	buf.WriteString(strconv.FormatInt(*n, 10))
}
