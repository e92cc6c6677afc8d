package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Reason classifies why a token failed to decode or verify.
type Reason string

const (
	// ReasonInvalidFormat is returned when the token is not three base64url JSON segments.
	ReasonInvalidFormat Reason = "INVALID_TOKEN_FORMAT"
	// ReasonExpired is returned when exp is in the past.
	ReasonExpired Reason = "TOKEN_EXPIRED"
	// ReasonNotActive is returned when nbf is in the future.
	ReasonNotActive Reason = "TOKEN_NOT_ACTIVE"
	// ReasonIssuedInFuture is returned when iat or auth_time is in the future.
	ReasonIssuedInFuture Reason = "TOKEN_IAT_IN_FUTURE"
	// ReasonInvalidSignature is returned for signature or algorithm mismatches.
	ReasonInvalidSignature Reason = "INVALID_SIGNATURE"
	// ReasonInvalidIssuer is returned when iss does not match.
	ReasonInvalidIssuer Reason = "INVALID_ISSUER"
	// ReasonInvalidAudience is returned when aud does not match.
	ReasonInvalidAudience Reason = "INVALID_AUDIENCE"
	// ReasonInvalidSubject is returned when sub is empty or too long.
	ReasonInvalidSubject Reason = "INVALID_SUBJECT"
	// ReasonUnknownKeyID is returned when no verification key matches the kid header.
	ReasonUnknownKeyID Reason = "UNKNOWN_KEY_ID"
	// ReasonVerificationFailed is the catch-all reason.
	ReasonVerificationFailed Reason = "VERIFICATION_FAILED"
)

var (
	// ErrUnknownKeyID is returned by key sources that hold no key for a kid.
	ErrUnknownKeyID = errors.New("unknown key id")
	// ErrMissingKeyID is returned when a key source requires a kid header and none is set.
	ErrMissingKeyID = errors.New("missing key id")
	// ErrKeyFetch is returned when a remote key set cannot be loaded.
	ErrKeyFetch = errors.New("key set fetch failed")

	errInvalidSubject = errors.New("token subject is empty or too long")
	errAuthTimeFuture = errors.New("token auth_time is in the future")
	errAuthTimeAbsent = errors.New("token auth_time is missing")
)

// TokenError is the structured failure returned by Decode and DecodeUnguarded.
type TokenError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *TokenError) Error() string {
	if e.Message == "" {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Message
}

func (e *TokenError) Unwrap() error { return e.Err }

// ReasonOf returns the Reason carried by err, or ReasonVerificationFailed.
func ReasonOf(err error) Reason {
	var tokenErr *TokenError
	if errors.As(err, &tokenErr) {
		return tokenErr.Reason
	}
	return ReasonVerificationFailed
}

func newTokenError(err error) *TokenError {
	reason := classify(err)
	return &TokenError{Reason: reason, Message: err.Error(), Err: err}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonInvalidFormat
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ReasonNotActive
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, errAuthTimeFuture):
		return ReasonIssuedInFuture
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonInvalidIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonInvalidAudience
	case errors.Is(err, jwt.ErrTokenInvalidSubject), errors.Is(err, errInvalidSubject):
		return ReasonInvalidSubject
	case errors.Is(err, ErrUnknownKeyID), errors.Is(err, ErrMissingKeyID):
		return ReasonUnknownKeyID
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonInvalidSignature
	default:
		return ReasonVerificationFailed
	}
}
