package middleware

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation limits.
const (
	// MaxCountryNameLength bounds lookup names; the longest official
	// country name is well under this.
	MaxCountryNameLength = 100

	// MaxEndpointLength bounds endpoint labels in usage records.
	MaxEndpointLength = 200
)

// Validation errors.
var (
	ErrCountryNameEmpty   = errors.New("country name is required")
	ErrCountryNameTooLong = errors.New("country name exceeds maximum length")
	ErrCountryNameInvalid = errors.New("country name contains invalid characters")
	ErrEndpointEmpty      = errors.New("endpoint is required")
	ErrEndpointTooLong    = errors.New("endpoint exceeds maximum length")
	ErrEndpointInvalid    = errors.New("endpoint contains invalid characters")
)

// ValidateCountryName checks a lookup name before it reaches the cache or
// the upstream. Letters in any script, spaces and the punctuation found in
// country names are allowed.
func ValidateCountryName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrCountryNameEmpty
	}
	if !utf8.ValidString(name) {
		return ErrCountryNameInvalid
	}
	if utf8.RuneCountInString(name) > MaxCountryNameLength {
		return ErrCountryNameTooLong
	}

	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), r == ' ':
		case strings.ContainsRune(".,'-()&", r):
		default:
			return ErrCountryNameInvalid
		}
	}
	return nil
}

// ValidateEndpoint checks an endpoint label submitted to the usage log.
// Labels are printable ASCII without whitespace, e.g. "/api/country".
func ValidateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ErrEndpointEmpty
	}
	if len(endpoint) > MaxEndpointLength {
		return ErrEndpointTooLong
	}
	for i := 0; i < len(endpoint); i++ {
		if c := endpoint[i]; c <= ' ' || c > '~' {
			return ErrEndpointInvalid
		}
	}
	return nil
}
