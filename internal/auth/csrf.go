package auth

import (
	"crypto/subtle"

	"github.com/google/uuid"
)

// Names used to carry the CSRF token on the wire.
const (
	CSRFCookieName = "csrf-token"
	CSRFHeaderName = "X-CSRF-Token"
)

// NewCSRFToken returns a fresh random token bound to a login.
func NewCSRFToken() string {
	return uuid.NewString()
}

// ValidateCSRF reports whether the request token equals the reference token.
// Missing values on either side never match. Comparison runs in constant time
// for equal-length inputs.
func ValidateCSRF(requestToken, referenceToken string) bool {
	if requestToken == "" || referenceToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(requestToken), []byte(referenceToken)) == 1
}
