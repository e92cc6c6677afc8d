package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidAPIKey is returned when a provider call is attempted without an API key.
	// It marks a configuration defect rather than a request failure.
	ErrInvalidAPIKey = errors.New("INVALID_API_KEY: identity provider API key is required")
	// ErrTransport wraps network failures talking to the provider.
	ErrTransport = errors.New("identity provider unreachable")
	// ErrDecode is returned when a provider response body cannot be decoded.
	ErrDecode = errors.New("identity provider response malformed")
	// ErrSessionCookieUnsupported is returned by tenant-scoped admins, which cannot mint
	// session cookies.
	ErrSessionCookieUnsupported = errors.New("session cookies are not supported for tenant clients")
)

// ProviderError is a non-2xx provider response.
type ProviderError struct {
	Op     string
	Status int
	// Code is the leading token of the provider message, e.g. EMAIL_NOT_FOUND.
	Code   string
	Detail string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: provider returned %d: %s", e.Op, e.Status, e.Detail)
}

// IsUserNotFound reports whether err is a provider "no such user" failure.
func IsUserNotFound(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case "EMAIL_NOT_FOUND", "USER_NOT_FOUND":
		return true
	}
	return false
}

// IsInvalidCredential reports whether the provider rejected the presented token.
func IsInvalidCredential(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case "INVALID_CUSTOM_TOKEN", "CREDENTIAL_MISMATCH", "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN",
		"INVALID_GRANT_TYPE", "MISSING_REFRESH_TOKEN", "USER_DISABLED", "INVALID_ID_TOKEN":
		return true
	}
	return false
}

// errorDetail extracts the message from a provider error body. Accepted shapes:
//
//	{"error": "invalid_grant", "error_description": "..."}
//	{"error": {"code": 400, "message": "EMAIL_NOT_FOUND"}}
func errorDetail(body []byte, status int) (code, detail string) {
	var envelope struct {
		Error       json.RawMessage `json:"error"`
		Description string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		detail = strings.TrimSpace(string(body))
		if detail == "" {
			detail = fmt.Sprintf("HTTP %d", status)
		}
		return "", detail
	}

	var asString string
	if err := json.Unmarshal(envelope.Error, &asString); err == nil {
		detail = asString
	} else {
		var asObject struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &asObject); err == nil {
			detail = asObject.Message
		}
	}
	if detail == "" {
		detail = fmt.Sprintf("HTTP %d", status)
	}
	code = detail
	if i := strings.IndexAny(code, " :"); i > 0 {
		code = code[:i]
	}
	code = strings.ToUpper(code)
	if envelope.Description != "" {
		detail += " (" + envelope.Description + ")"
	}
	return code, detail
}
