package ternsecure

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ternsecure/ternsecure/identity"
	"github.com/ternsecure/ternsecure/internal/rate"
	"github.com/ternsecure/ternsecure/jwt"
)

const (
	auditEventSessionVerify   = "session_verify"
	auditEventSessionCreate   = "session_create"
	auditEventSessionRefresh  = "session_refresh"
	auditEventSessionRevoke   = "session_revoke"
	auditEventPasswordReset   = "password_reset_email"
	auditEventRateLimited     = "rate_limit_triggered"
	auditEventRequestRejected = "request_rejected"
	auditEventPanic           = "handler_panic"
)

// AuditErrorCode is the error classification carried by audit events.
type AuditErrorCode string

const (
	auditErrNoToken           AuditErrorCode = "no_token"
	auditErrTokenExpired      AuditErrorCode = "token_expired"
	auditErrInvalidToken      AuditErrorCode = "invalid_token"
	auditErrRateLimited       AuditErrorCode = "rate_limited"
	auditErrUserNotFound      AuditErrorCode = "user_not_found"
	auditErrProviderRejected  AuditErrorCode = "provider_rejected"
	auditErrProviderTransport AuditErrorCode = "provider_unreachable"
	auditErrMisconfigured     AuditErrorCode = "misconfigured"
	auditErrUnavailable       AuditErrorCode = "backend_unavailable"
	auditErrRejected          AuditErrorCode = "rejected"
	auditErrInternal          AuditErrorCode = "internal_error"
)

func (d *deps) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if d == nil || d.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: d.now().UTC(),
		EventType: eventType,
		RequestID: requestIDFromContext(ctx),
		UserID:    userID,
		TenantID:  d.tenantID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	d.audit.Emit(ctx, event)
}

func (d *deps) emitRateLimit(ctx context.Context, scope string, sessionID string) {
	d.metrics.Inc(MetricRateLimitHit)
	d.emitAudit(ctx, auditEventRateLimited, false, "", sessionID, rate.ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	var tokenErr *jwt.TokenError
	var providerErr *identity.ProviderError
	switch {
	case errors.Is(err, ErrNoToken):
		return auditErrNoToken
	case errors.Is(err, rate.ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, rate.ErrRedisUnavailable):
		return auditErrUnavailable
	case errors.Is(err, identity.ErrInvalidAPIKey):
		return auditErrMisconfigured
	case errors.Is(err, identity.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return auditErrProviderTransport
	case identity.IsUserNotFound(err):
		return auditErrUserNotFound
	case errors.As(err, &providerErr):
		return auditErrProviderRejected
	case errors.As(err, &tokenErr):
		if tokenErr.Reason == jwt.ReasonExpired {
			return auditErrTokenExpired
		}
		return auditErrInvalidToken
	case errors.As(err, &apiErr):
		if apiErr.Status() >= 500 {
			return auditErrInternal
		}
		return auditErrRejected
	default:
		return auditErrInternal
	}
}
