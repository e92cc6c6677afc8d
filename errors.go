package ternsecure

import (
	"errors"
	"net/http"
)

var (
	// ErrEngineNotReady is returned when an Engine method runs on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrBuilderUsed is returned by a second call to Builder.Build.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrInvalidConfig wraps every Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrMissingAdmin is returned when no Firebase admin was given and none could be
	// initialized.
	ErrMissingAdmin = errors.New("firebase admin is required")
	// ErrNoToken means a request carried neither a session nor an ID-token cookie.
	ErrNoToken = errors.New("no session token")
)

// ErrorCode is the machine-readable code of an error envelope.
type ErrorCode string

const (
	CodeCORSOriginNotAllowed  ErrorCode = "CORS_ORIGIN_NOT_ALLOWED"
	CodeCSRFProtection        ErrorCode = "CSRF_PROTECTION"
	CodeInvalidHeaders        ErrorCode = "INVALID_HEADERS"
	CodeUserAgentBlocked      ErrorCode = "USER_AGENT_BLOCKED"
	CodeInvalidRoute          ErrorCode = "INVALID_ROUTE"
	CodeEndpointNotFound      ErrorCode = "ENDPOINT_NOT_FOUND"
	CodeMethodNotAllowed      ErrorCode = "METHOD_NOT_ALLOWED"
	CodeSubEndpointRequired   ErrorCode = "SUB_ENDPOINT_REQUIRED"
	CodeInvalidRequestFormat  ErrorCode = "INVALID_REQUEST_FORMAT"
	CodeInvalidToken          ErrorCode = "INVALID_TOKEN"
	CodeCSRFCookieMissing     ErrorCode = "CSRF_COOKIE_MISSING"
	CodeCSRFTokenMismatch     ErrorCode = "CSRF_TOKEN_MISMATCH"
	CodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	CodeInvalidSession        ErrorCode = "INVALID_SESSION"
	CodeSessionCreationFailed ErrorCode = "SESSION_CREATION_FAILED"
	CodeRefreshFailed         ErrorCode = "REFRESH_FAILED"
	CodeInvalidEmail          ErrorCode = "INVALID_EMAIL"
	CodeUserNotFound          ErrorCode = "USER_NOT_FOUND"
	CodePasswordResetFailed   ErrorCode = "PASSWORD_RESET_FAILED"
	CodeSignInCreateFailed    ErrorCode = "SIGN_IN_CREATE_FAILED"
	CodeNotImplemented        ErrorCode = "NOT_IMPLEMENTED"
	CodeRateLimited           ErrorCode = "RATE_LIMITED"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeInternal              ErrorCode = "INTERNAL_ERROR"
)

var codeStatus = map[ErrorCode]int{
	CodeCORSOriginNotAllowed:  http.StatusForbidden,
	CodeCSRFProtection:        http.StatusForbidden,
	CodeInvalidHeaders:        http.StatusBadRequest,
	CodeUserAgentBlocked:      http.StatusForbidden,
	CodeInvalidRoute:          http.StatusNotFound,
	CodeEndpointNotFound:      http.StatusNotFound,
	CodeMethodNotAllowed:      http.StatusMethodNotAllowed,
	CodeSubEndpointRequired:   http.StatusBadRequest,
	CodeInvalidRequestFormat:  http.StatusBadRequest,
	CodeInvalidToken:          http.StatusBadRequest,
	CodeCSRFCookieMissing:     http.StatusForbidden,
	CodeCSRFTokenMismatch:     http.StatusForbidden,
	CodeUnauthorized:          http.StatusUnauthorized,
	CodeInvalidSession:        http.StatusUnauthorized,
	CodeSessionCreationFailed: http.StatusInternalServerError,
	CodeRefreshFailed:         http.StatusInternalServerError,
	CodeInvalidEmail:          http.StatusBadRequest,
	CodeUserNotFound:          http.StatusNotFound,
	CodePasswordResetFailed:   http.StatusInternalServerError,
	CodeSignInCreateFailed:    http.StatusInternalServerError,
	CodeNotImplemented:        http.StatusNotImplemented,
	CodeRateLimited:           http.StatusTooManyRequests,
	CodeNotFound:              http.StatusNotFound,
	CodeInternal:              http.StatusInternalServerError,
}

// Status returns the HTTP status bound to c. Unknown codes map to 500.
func (c ErrorCode) Status() int {
	if status, ok := codeStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// APIError is an error with a stable code and a caller-safe message. Err keeps the
// underlying cause for logs and is never rendered.
type APIError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewAPIError builds an APIError without a cause.
func NewAPIError(code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// Status returns the HTTP status of the error code.
func (e *APIError) Status() int { return e.Code.Status() }

// Response renders the error envelope.
func (e *APIError) Response() *Response {
	return errorResponse(e.Code, e.Message)
}

// CodeOf returns the ErrorCode carried by err, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return CodeInternal
}
