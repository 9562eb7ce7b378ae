package validator

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Message kinds accepted at ingestion
const (
	KindMessage      = "message"
	KindNotification = "notification"
)

// MaxBuoyID is the largest id the buoy_id column holds
const MaxBuoyID = math.MaxInt32

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// ValidateIngest checks the top-level fields of an ingestion request before
// any parsing is attempted. An empty kind is accepted and means message.
func ValidateIngest(content, kind string) ValidationResult {
	if strings.TrimSpace(content) == "" {
		return ValidationResult{Reason: "no message content provided"}
	}
	// PostgreSQL TEXT holds neither NUL nor invalid UTF-8
	if !utf8.ValidString(content) {
		return ValidationResult{Reason: "message content is not valid UTF-8"}
	}
	if strings.ContainsRune(content, 0) {
		return ValidationResult{Reason: "message content contains a NUL character"}
	}

	switch kind {
	case "", KindMessage, KindNotification:
	default:
		return ValidationResult{Reason: fmt.Sprintf("unknown message type %q", kind)}
	}

	return ValidationResult{IsValid: true}
}

// NormalizeKind applies the default kind.
func NormalizeKind(kind string) string {
	if kind == "" {
		return KindMessage
	}
	return kind
}

// ValidateBuoyID rejects buoy id overrides outside 0..MaxBuoyID.
func ValidateBuoyID(id *int) ValidationResult {
	if id == nil {
		return ValidationResult{IsValid: true}
	}
	if *id < 0 {
		return ValidationResult{Reason: "buoyId must be zero or positive"}
	}
	if *id > MaxBuoyID {
		return ValidationResult{Reason: fmt.Sprintf("buoyId must not exceed %d", MaxBuoyID)}
	}
	return ValidationResult{IsValid: true}
}
