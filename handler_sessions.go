package ternsecure

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ternsecure/ternsecure/cookie"
	"github.com/ternsecure/ternsecure/identity"
	"github.com/ternsecure/ternsecure/jwt"
)

// SessionsHandler serves /api/auth/sessions/{verify,createsession,refresh,revoke}.
type SessionsHandler struct {
	deps *deps
}

func newSessionsHandler(d *deps) *SessionsHandler {
	return &SessionsHandler{deps: d}
}

func (h *SessionsHandler) CanHandle(endpoint string) bool { return endpoint == EndpointSessions }

func (h *SessionsHandler) Handle(ctx context.Context, call *Call) *Response {
	rc := call.Request
	switch rc.SubEndpoint {
	case SubVerify:
		if rc.Method != http.MethodGet {
			return MethodNotAllowed(rc.Method)
		}
		return h.verify(ctx, call)
	case SubCreateSession:
		if rc.Method != http.MethodPost {
			return MethodNotAllowed(rc.Method)
		}
		return h.createSession(ctx, call)
	case SubRefresh:
		if rc.Method != http.MethodPost {
			return MethodNotAllowed(rc.Method)
		}
		return h.refresh(ctx, call)
	case SubRevoke:
		if rc.Method != http.MethodPost {
			return MethodNotAllowed(rc.Method)
		}
		return h.revoke(ctx, call)
	default:
		return NotFound()
	}
}

// verify reads the session cookie this system set, without re-verifying it.
func (h *SessionsHandler) verify(ctx context.Context, call *Call) *Response {
	d := h.deps
	token, ok := d.storedToken(call.Cookies)
	if !ok {
		d.metrics.Inc(MetricVerifyFailure)
		d.emitAudit(ctx, auditEventSessionVerify, false, "", "", ErrNoToken, nil)
		return errorResponse(CodeUnauthorized, "No session found")
	}

	decoded, err := jwt.DecodeUnguarded(token)
	if err != nil {
		d.metrics.Inc(MetricVerifyFailure)
		d.emitAudit(ctx, auditEventSessionVerify, false, "", "", err, nil)
		return errorResponse(CodeInvalidSession, "Invalid session")
	}
	claims := decoded.Claims
	if exp := claims.ExpiresAt(); !exp.IsZero() && !d.now().Before(exp) {
		d.metrics.Inc(MetricVerifyFailure)
		d.emitAudit(ctx, auditEventSessionVerify, false, claims.UserID(), claims.SessionID(),
			&jwt.TokenError{Reason: jwt.ReasonExpired, Message: "session expired"}, nil)
		return errorResponse(CodeInvalidSession, "Session expired")
	}

	d.cacheSession(ctx, claims)
	d.metrics.Inc(MetricVerifySuccess)
	return Success(map[string]any{
		"valid":  true,
		"uid":    claims.UserID(),
		"claims": claims,
	})
}

// createSession verifies the ID token with the admin SDK, mints a custom token and
// exchanges it for ID and refresh tokens. Cookies are staged only after every
// upstream call succeeded.
func (h *SessionsHandler) createSession(ctx context.Context, call *Call) *Response {
	d := h.deps
	idToken := ""
	if call.Body != nil {
		idToken = call.Body.IDToken
	}
	if idToken == "" {
		return errorResponse(CodeInvalidToken, "ID token is required")
	}

	verified, err := d.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		d.logger.InfoContext(ctx, "id token rejected",
			slog.String("request_id", call.Request.RequestID),
			slog.String("error", err.Error()))
		d.metrics.Inc(MetricSessionCreationFailure)
		d.emitAudit(ctx, auditEventSessionCreate, false, "", "", err, nil)
		return errorResponse(CodeInvalidToken, "Invalid ID token")
	}

	fail := func(err error) *Response {
		d.metrics.Inc(MetricSessionCreationFailure)
		d.emitAudit(ctx, auditEventSessionCreate, false, verified.UID, "", err, nil)
		return d.upstreamFailure(ctx, CodeSessionCreationFailed, "Failed to create session", err)
	}

	customToken, err := d.admin.CustomToken(ctx, verified.UID, nil)
	if err != nil {
		return fail(err)
	}
	pair, err := d.identity.ExchangeCustomForIDAndRefreshTokens(ctx, call.Config.APIKey,
		identity.CustomTokenRequest{Token: customToken})
	if err != nil {
		return fail(err)
	}

	var sessionCookie string
	if call.Config.Session.MintSessionCookie {
		maxAge := time.Duration(d.policy.SessionMaxAge()) * time.Second
		sessionCookie, err = d.admin.SessionCookie(ctx, pair.IDToken, maxAge)
		if err != nil {
			return fail(err)
		}
	}

	sessionSpec, err := d.policy.SessionCookieOptions(nil)
	if err != nil {
		return fail(err)
	}
	call.Cookies.Set(d.policy.IDTokenCookieOptions(), pair.IDToken)
	call.Cookies.Set(d.policy.RefreshTokenCookieOptions(), pair.RefreshToken)
	call.Cookies.Set(d.policy.CustomTokenCookieOptions(), customToken)
	if sessionCookie != "" {
		call.Cookies.Set(sessionSpec, sessionCookie)
	}

	sessionID := ""
	if decoded, err := jwt.DecodeUnguarded(pair.IDToken); err == nil {
		sessionID = decoded.Claims.SessionID()
		d.cacheSession(ctx, decoded.Claims)
	}
	d.metrics.Inc(MetricSessionCreated)
	d.emitAudit(ctx, auditEventSessionCreate, true, verified.UID, sessionID, nil, func() map[string]string {
		return map[string]string{"session_cookie": boolString(sessionCookie != "")}
	})
	return Success(map[string]any{"message": "Session created successfully"})
}

// refresh rotates the ID and refresh cookies. The caller-supplied ID token is fully
// verified and must belong to the same user as the refreshed session.
func (h *SessionsHandler) refresh(ctx context.Context, call *Call) *Response {
	d := h.deps
	idToken := ""
	if call.Body != nil {
		idToken = call.Body.IDToken
	}
	decoded, err := d.idCodec.Decode(ctx, idToken)
	if err != nil {
		d.metrics.Inc(MetricRefreshFailure)
		d.emitAudit(ctx, auditEventSessionRefresh, false, "", "", err, nil)
		return errorResponse(CodeInvalidSession, "Invalid session")
	}
	uid := decoded.Claims.UserID()
	sessionID := decoded.Claims.SessionID()

	refreshToken, ok := call.Cookies.Get(d.policy.Name(cookie.RefreshToken))
	if !ok {
		d.metrics.Inc(MetricRefreshFailure)
		d.emitAudit(ctx, auditEventSessionRefresh, false, uid, sessionID, ErrNoToken, nil)
		return errorResponse(CodeInvalidSession, "Refresh token not found")
	}

	if d.limiter != nil {
		if resp := d.checkLimit(ctx, "refresh", sessionID, d.limiter.CheckRefresh(ctx, sessionID)); resp != nil {
			d.metrics.Inc(MetricRefreshFailure)
			return resp
		}
	}

	pair, err := d.identity.RefreshToken(ctx, call.Config.APIKey, identity.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		d.metrics.Inc(MetricRefreshFailure)
		d.emitAudit(ctx, auditEventSessionRefresh, false, uid, sessionID, err, nil)
		return d.upstreamFailure(ctx, CodeRefreshFailed, "Failed to refresh session", err)
	}
	if pair.UserID != "" && pair.UserID != uid {
		d.metrics.Inc(MetricRefreshFailure)
		d.emitAudit(ctx, auditEventSessionRefresh, false, uid, sessionID,
			NewAPIError(CodeInvalidSession, "refresh token belongs to another user"), nil)
		return errorResponse(CodeInvalidSession, "Invalid session")
	}

	call.Cookies.Set(d.policy.IDTokenCookieOptions(), pair.IDToken)
	call.Cookies.Set(d.policy.RefreshTokenCookieOptions(), pair.RefreshToken)
	if refreshed, err := jwt.DecodeUnguarded(pair.IDToken); err == nil {
		d.cacheSession(ctx, refreshed.Claims)
	}

	d.metrics.Inc(MetricRefreshSuccess)
	d.emitAudit(ctx, auditEventSessionRefresh, true, uid, sessionID, nil, nil)
	payload := map[string]any{"message": "Session refreshed successfully"}
	if pair.ExpiresIn > 0 {
		payload["expiresIn"] = int64(pair.ExpiresIn / time.Second)
	}
	return Success(payload)
}

// revoke clears every session cookie and always succeeds. Refresh tokens are only
// revoked upstream for a session that still verifies.
func (h *SessionsHandler) revoke(ctx context.Context, call *Call) *Response {
	d := h.deps
	auth := d.auth.resolve(ctx, call.Cookies)

	if token, ok := d.storedToken(call.Cookies); ok {
		if decoded, err := jwt.DecodeUnguarded(token); err == nil {
			d.forgetSession(ctx, decoded.Claims.SessionID())
		}
	}
	for _, kind := range cookie.SessionKinds {
		call.Cookies.Delete(d.policy.DeleteOptions(kind, nil))
	}

	if auth.IsSignedIn() && call.Config.Session.RevokeOnSignOut && d.admin != nil {
		if err := d.admin.RevokeRefreshTokens(ctx, auth.UserID); err != nil {
			d.logger.WarnContext(ctx, "refresh token revocation failed",
				slog.String("request_id", call.Request.RequestID),
				slog.String("uid", auth.UserID),
				slog.String("error", err.Error()))
		}
	}

	d.metrics.Inc(MetricSessionRevoked)
	d.emitAudit(ctx, auditEventSessionRevoke, true, auth.UserID, auth.SessionID, nil, nil)
	return Success(map[string]any{"message": "Session revoked successfully"})
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
