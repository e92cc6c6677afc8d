package ternsecure

import "context"

type requestContextKey struct{}
type authContextKey struct{}

// WithRequestContext attaches rc to ctx. The engine does this before dispatching so
// handlers and audit events can read the request id and client IP.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the RequestContext attached to ctx.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok && rc != nil
}

// WithAuth attaches a resolved Auth capability to ctx.
func WithAuth(ctx context.Context, auth Auth) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthFromContext returns the Auth capability attached by middleware.Guard.
func AuthFromContext(ctx context.Context) (Auth, bool) {
	if ctx == nil {
		return nil, false
	}
	auth, ok := ctx.Value(authContextKey{}).(Auth)
	return auth, ok && auth != nil
}

func clientIPFromContext(ctx context.Context) string {
	if rc, ok := RequestContextFrom(ctx); ok {
		return rc.ClientIP
	}
	return ""
}

func requestIDFromContext(ctx context.Context) string {
	if rc, ok := RequestContextFrom(ctx); ok {
		return rc.RequestID
	}
	return ""
}
