package ternsecure

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// RequestContext is the normalized, read-only view of one inbound request.
//
// Optional headers are nil when absent. Segments drops empty path segments, so
// /api/auth/sessions/verify yields ["api" "auth" "sessions" "verify"], Endpoint
// "sessions" and SubEndpoint "verify".
type RequestContext struct {
	RequestID   string
	Method      string
	Path        string
	Segments    []string
	Endpoint    string
	SubEndpoint string

	Origin    *string
	Host      *string
	Referer   *string
	UserAgent *string

	Headers http.Header
	Cookies map[string]string

	// TernURL is the canonical URL of the request as the client addressed it.
	TernURL  *url.URL
	ClientIP string
}

// BuildRequestContext derives a RequestContext from r without trusting any proxy.
// It performs no I/O and never panics; a nil request yields an empty context.
func BuildRequestContext(r *http.Request) *RequestContext {
	return BuildRequestContextBehind(r, nil)
}

// BuildRequestContextBehind is BuildRequestContext for a server behind proxies.
// X-Forwarded-Host, X-Forwarded-Proto, X-Forwarded-For and X-Real-IP are honoured
// only when the peer is trusted by proxies.
func BuildRequestContextBehind(r *http.Request, proxies *ProxyMatcher) *RequestContext {
	rc := &RequestContext{
		RequestID: uuid.NewString(),
		Headers:   http.Header{},
		Cookies:   map[string]string{},
	}
	if r == nil {
		return rc
	}

	rc.Method = strings.ToUpper(r.Method)
	if r.URL != nil {
		rc.Path = r.URL.Path
	}
	rc.Segments = splitPath(rc.Path)
	if len(rc.Segments) > 2 {
		rc.Endpoint = rc.Segments[2]
	}
	if len(rc.Segments) > 3 {
		rc.SubEndpoint = rc.Segments[3]
	}

	if r.Header != nil {
		rc.Headers = r.Header.Clone()
	}
	rc.Origin = headerPtr(rc.Headers, "Origin")
	rc.Referer = headerPtr(rc.Headers, "Referer")
	rc.UserAgent = headerPtr(rc.Headers, "User-Agent")

	forwarded := proxies.Trusts(r)
	host := r.Host
	if fwd := firstValue(rc.Headers.Get("X-Forwarded-Host")); forwarded && fwd != "" {
		host = fwd
	}
	if host != "" {
		rc.Host = &host
	}

	for _, c := range r.Cookies() {
		if _, seen := rc.Cookies[c.Name]; !seen {
			rc.Cookies[c.Name] = c.Value
		}
	}

	rc.TernURL = ternURL(r, host, forwarded)
	rc.ClientIP = clientIP(r, forwarded)
	return rc
}

// Cookie returns the value of the named request cookie.
func (rc *RequestContext) Cookie(name string) (string, bool) {
	if rc == nil {
		return "", false
	}
	v, ok := rc.Cookies[name]
	return v, ok && v != ""
}

// SameOrigin reports whether the Origin header is absent or names this host.
func (rc *RequestContext) SameOrigin() bool {
	if rc.Origin == nil {
		return true
	}
	return rc.Host != nil && originMatchesHost(*rc.Origin, *rc.Host)
}

// originMatchesHost compares the host[:port] of an Origin value with host.
func originMatchesHost(origin, host string) bool {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, strings.TrimSpace(host))
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func headerPtr(h http.Header, name string) *string {
	values, ok := h[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

func firstValue(list string) string {
	if i := strings.IndexByte(list, ','); i >= 0 {
		list = list[:i]
	}
	return strings.TrimSpace(list)
}

func ternURL(r *http.Request, host string, forwarded bool) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := firstValue(r.Header.Get("X-Forwarded-Proto")); forwarded && (proto == "https" || proto == "http") {
		scheme = proto
	}
	u := &url.URL{Scheme: scheme, Host: host}
	if r.URL != nil {
		u.Path = r.URL.Path
		u.RawPath = r.URL.RawPath
		u.RawQuery = r.URL.RawQuery
	}
	return u
}

func clientIP(r *http.Request, forwarded bool) string {
	if forwarded {
		if ip := firstValue(r.Header.Get("X-Forwarded-For")); ip != "" {
			return ip
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return remoteHost(r.RemoteAddr)
}
