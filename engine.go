package ternsecure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/ternsecure/ternsecure/cookie"
	"github.com/ternsecure/ternsecure/internal"
	"github.com/ternsecure/ternsecure/jwt"
	"github.com/ternsecure/ternsecure/session"
)

// Engine serves the authentication routes and resolves request authentication.
//
// Engine is safe for concurrent use after Build. The only state shared between
// requests is the read-only configuration, the handler registry and the context
// cache.
type Engine struct {
	config   Config
	deps     *deps
	pipeline *Pipeline
	registry *Registry
}

// ServeHTTP runs the validation pipeline and the matching handler, then writes the
// response. Mount it at /api/auth/.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e == nil || e.deps == nil {
		_ = errorResponse(CodeInternal, "Authentication service unavailable").write(w, r)
		return
	}
	start := time.Now()
	rc := BuildRequestContextBehind(r, e.deps.proxies)
	ctx := WithRequestContext(r.Context(), rc)
	r = r.WithContext(ctx)

	e.deps.metrics.Inc(MetricRequest)
	resp := e.serve(ctx, r, rc)
	if err := resp.write(w, r); err != nil {
		e.deps.logger.DebugContext(ctx, "response write failed",
			slog.String("request_id", rc.RequestID),
			slog.String("error", err.Error()))
	}
	e.deps.metrics.Observe(MetricRequestLatency, time.Since(start))
}

func (e *Engine) serve(ctx context.Context, r *http.Request, rc *RequestContext) (resp *Response) {
	defer func() {
		if rec := recover(); rec != nil {
			e.deps.metrics.Inc(MetricPanicRecovered)
			e.deps.logger.ErrorContext(ctx, "handler panic recovered",
				slog.String("request_id", rc.RequestID),
				slog.String("endpoint", rc.Endpoint),
				slog.String("sub_endpoint", rc.SubEndpoint),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())))
			e.deps.emitAudit(ctx, auditEventPanic, false, "", "", nil, nil)
			resp = errorResponse(CodeInternal, "Internal server error")
		}
	}()

	body, rejected, stage := e.pipeline.Run(r, rc)
	if rejected != nil {
		if stage == StageCORS && rc.Method == http.MethodOptions {
			e.deps.metrics.Inc(MetricPreflight)
			return rejected
		}
		if id, ok := stageMetric(stage); ok {
			e.deps.metrics.Inc(id)
		}
		e.deps.emitAudit(ctx, auditEventRequestRejected, false, "", "", nil, func() map[string]string {
			return map[string]string{"stage": string(stage), "status": fmt.Sprint(rejected.Status)}
		})
		return e.withCORS(rejected, rc)
	}

	h := e.registry.Resolve(rc.Endpoint)
	if h == nil {
		return e.withCORS(errorResponse(CodeEndpointNotFound, "Endpoint not found: "+rc.Endpoint), rc)
	}

	jar := cookie.NewJarFromMap(rc.Cookies)
	resp = h.Handle(ctx, &Call{Request: rc, Body: body, Cookies: jar, Config: &e.config})
	if resp == nil {
		resp = errorResponse(CodeInternal, "Internal server error")
	}
	if resp.IsError() {
		jar.Discard()
	} else {
		resp.Cookies = append(resp.Cookies, jar.Pending()...)
	}
	return e.withCORS(resp, rc)
}

func (e *Engine) withCORS(resp *Response, rc *RequestContext) *Response {
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	for k, values := range CORSHeaders(rc, e.config.Validation.CORS) {
		for _, v := range values {
			resp.Header.Add(k, v)
		}
	}
	return resp
}

// Handlers returns the live handler registry.
func (e *Engine) Handlers() *Registry {
	return e.registry
}

// Authenticate verifies the session cookie, or the ID-token cookie, of r. It never
// returns a signed-in object for a token that failed verification.
func (e *Engine) Authenticate(r *http.Request) AuthObject {
	if e == nil || e.deps == nil || r == nil {
		return jwt.SignedOut(jwt.SignedOutNoToken)
	}
	return e.deps.auth.resolve(r.Context(), cookie.NewJar(r))
}

// Auth resolves r and binds the result to its canonical URL.
func (e *Engine) Auth(r *http.Request) Auth {
	return e.BindAuth(r, e.Authenticate(r))
}

// BindAuth binds an already resolved object to r's canonical URL and the
// configured Protect defaults.
func (e *Engine) BindAuth(r *http.Request, object AuthObject) Auth {
	var defaults ProtectOptions
	var proxies *ProxyMatcher
	if e != nil {
		defaults = e.config.Protect
		if e.deps != nil {
			proxies = e.deps.proxies
		}
	}
	return NewAuth(object, BuildRequestContextBehind(r, proxies).TernURL, defaults)
}

// VerifyIDToken fully verifies an ID token.
func (e *Engine) VerifyIDToken(ctx context.Context, token string) AuthObject {
	if e == nil || e.deps == nil {
		return jwt.SignedOut(jwt.SignedOutNoToken)
	}
	return e.deps.auth.idTokenCodec.Verify(ctx, token)
}

// VerifySessionCookie fully verifies a Firebase session cookie.
func (e *Engine) VerifySessionCookie(ctx context.Context, token string) AuthObject {
	if e == nil || e.deps == nil {
		return jwt.SignedOut(jwt.SignedOutNoToken)
	}
	return e.deps.auth.sessionCodec.Verify(ctx, token)
}

// IssueCSRFToken returns the request's CSRF token, setting a fresh CSRF cookie on w
// when r carries none. The cookie is readable by scripts so the page can echo it
// as csrfToken.
func (e *Engine) IssueCSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if e == nil || e.deps == nil {
		return "", ErrEngineNotReady
	}
	name := e.deps.policy.Name(cookie.CSRFToken)
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value, nil
	}
	token, err := internal.NewCSRFToken()
	if err != nil {
		return "", fmt.Errorf("csrf token: %w", err)
	}
	http.SetCookie(w, e.deps.policy.CSRFCookieOptions().Cookie(token))
	return token, nil
}

// CookiePolicy returns the cookie policy derived from the configuration.
func (e *Engine) CookiePolicy() *cookie.Policy {
	return e.deps.policy
}

// Cache returns the session context cache.
func (e *Engine) Cache() session.Cache {
	return e.deps.cache
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.deps.logger
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil || e.deps == nil {
		return
	}
	e.deps.audit.Close()
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.deps == nil {
		return 0
	}
	return e.deps.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.deps == nil {
		return map[string]uint64{}
	}
	return e.deps.audit.DroppedByType()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.deps == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.deps.metrics.Snapshot()
}
