// Package validate provides centralized input validation for the audit API
// surface. The ledger itself stores what it is given; this package is the
// boundary that keeps junk out of it.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length (0 = no minimum)
	MaxLength      int            // Maximum length (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if
// validation fails. Lengths are counted in runes, not bytes.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}
	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// eventTypePattern matches the category.action vocabulary: lowercase segments
// of letters, digits, and underscores, joined by dots.
var eventTypePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// EventType validates an audit event type:
// - 1-100 characters
// - lowercase dotted segments (e.g. "document.served", "pnsa.operator_login")
func EventType(eventType string) (string, error) {
	return String(eventType, StringConstraints{
		MinLength:      1,
		MaxLength:      100,
		AllowedPattern: eventTypePattern,
		AllowEmpty:     false,
		TrimSpace:      true,
	})
}

// EventDescription validates an audit event description:
// - Required (not empty)
// - Max 5000 characters
func EventDescription(description string) (string, error) {
	return String(description, StringConstraints{
		MinLength:  1,
		MaxLength:  5000,
		AllowEmpty: false,
		TrimSpace:  true,
	})
}
