package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// CSRFTokenSize is the number of random bytes behind a CSRF token.
const CSRFTokenSize = 32

var errShortToken = errors.New("token size must be at least 16 bytes")

// NewToken returns size random bytes encoded as unpadded base64url.
func NewToken(size int) (string, error) {
	if size < 16 {
		return "", errShortToken
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewCSRFToken returns a fresh double-submit CSRF token.
func NewCSRFToken() (string, error) {
	return NewToken(CSRFTokenSize)
}
