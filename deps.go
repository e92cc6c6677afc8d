package ternsecure

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ternsecure/ternsecure/cookie"
	"github.com/ternsecure/ternsecure/identity"
	"github.com/ternsecure/ternsecure/internal/rate"
	"github.com/ternsecure/ternsecure/jwt"
	"github.com/ternsecure/ternsecure/session"
)

// IdentityClient is the identity provider REST surface the handlers call.
// *identity.Client implements it.
type IdentityClient interface {
	ExchangeCustomForIDAndRefreshTokens(ctx context.Context, apiKey string, req identity.CustomTokenRequest) (*identity.TokenPair, error)
	RefreshToken(ctx context.Context, apiKey string, req identity.RefreshTokenRequest) (*identity.TokenPair, error)
	SendPasswordResetEmail(ctx context.Context, apiKey string, req identity.PasswordResetRequest) (string, error)
}

var _ IdentityClient = (*identity.Client)(nil)

// deps is the long-lived state shared by the engine and the built-in handlers.
// Everything in it is read-only or safe for concurrent use.
type deps struct {
	tenantID string
	policy   *cookie.Policy
	identity IdentityClient
	admin    identity.Admin
	idCodec  *jwt.Codec
	auth     *authenticator
	cache    session.Cache
	limiter  *rate.Limiter
	proxies  *ProxyMatcher
	logger   *slog.Logger
	metrics  *Metrics
	audit    *auditDispatcher
	now      func() time.Time
}

// authenticator resolves an AuthObject from session cookies with full verification.
type authenticator struct {
	policy       *cookie.Policy
	sessionCodec *jwt.Codec
	idTokenCodec *jwt.Codec
}

// resolve prefers the session cookie and falls back to the ID-token cookie. A
// present but invalid session cookie is not retried with the ID token.
func (a *authenticator) resolve(ctx context.Context, store cookie.Store) AuthObject {
	if token, ok := store.Get(a.policy.Name(cookie.Session)); ok {
		return a.sessionCodec.Verify(ctx, token)
	}
	if token, ok := store.Get(a.policy.Name(cookie.IDToken)); ok {
		return a.idTokenCodec.Verify(ctx, token)
	}
	return jwt.SignedOut(jwt.SignedOutNoToken)
}

// storedToken returns the raw session token from the cookies, session cookie first.
func (d *deps) storedToken(store cookie.Store) (string, bool) {
	if token, ok := store.Get(d.policy.Name(cookie.Session)); ok {
		return token, true
	}
	return store.Get(d.policy.Name(cookie.IDToken))
}

// cacheSession records a decoded token in the context cache. Failures are logged;
// the cache is best effort.
func (d *deps) cacheSession(ctx context.Context, claims jwt.ClaimSet) {
	if d.cache == nil {
		return
	}
	sid := claims.SessionID()
	if sid == "" {
		return
	}
	entry := &session.Context{
		SessionID: sid,
		UserID:    claims.UserID(),
		TenantID:  claims.Firebase().Tenant,
		Email:     claims.Email(),
		Claims:    map[string]any(claims),
		UpdatedAt: d.now().Unix(),
	}
	if exp := claims.ExpiresAt(); !exp.IsZero() {
		entry.ExpiresAt = exp.Unix()
	}
	if err := d.cache.Put(ctx, entry); err != nil {
		d.logger.WarnContext(ctx, "session cache put failed",
			slog.String("request_id", requestIDFromContext(ctx)),
			slog.String("error", err.Error()))
	}
}

func (d *deps) forgetSession(ctx context.Context, sessionID string) {
	if d.cache == nil || sessionID == "" {
		return
	}
	if err := d.cache.Delete(ctx, sessionID); err != nil {
		d.logger.WarnContext(ctx, "session cache delete failed",
			slog.String("request_id", requestIDFromContext(ctx)),
			slog.String("error", err.Error()))
	}
}

// upstreamFailure logs err with full detail and returns code with the fixed message.
// Provider text stays in the log.
func (d *deps) upstreamFailure(ctx context.Context, code ErrorCode, message string, err error) *Response {
	rc, _ := RequestContextFrom(ctx)
	attrs := []any{slog.String("code", string(code)), slog.String("error", err.Error())}
	if rc != nil {
		attrs = append(attrs,
			slog.String("request_id", rc.RequestID),
			slog.String("endpoint", rc.Endpoint),
			slog.String("sub_endpoint", rc.SubEndpoint))
	}
	var providerErr *identity.ProviderError
	if errors.As(err, &providerErr) {
		attrs = append(attrs,
			slog.Int("provider_status", providerErr.Status),
			slog.String("provider_code", providerErr.Code))
	}
	if errors.Is(err, identity.ErrInvalidAPIKey) {
		d.logger.ErrorContext(ctx, "identity provider misconfigured", attrs...)
	} else {
		d.logger.ErrorContext(ctx, "identity provider call failed", attrs...)
	}
	return errorResponse(code, message)
}

// checkLimit maps a limiter outcome to a 429 response. Redis failures fail open.
func (d *deps) checkLimit(ctx context.Context, scope, sessionID string, err error) *Response {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		d.emitRateLimit(ctx, scope, sessionID)
		return errorResponse(CodeRateLimited, "Too many requests")
	default:
		d.logger.WarnContext(ctx, "rate limiter unavailable",
			slog.String("scope", scope),
			slog.String("request_id", requestIDFromContext(ctx)),
			slog.String("error", err.Error()))
		return nil
	}
}
