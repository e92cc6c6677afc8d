package ternsecure

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ValidateCORS answers preflight requests and rejects origins outside the allow
// list. OPTIONS always yields 204, whatever the origin; the Allow-Origin header is
// only set for allowed origins.
func ValidateCORS(rc *RequestContext, cfg CORSConfig) *Response {
	if rc.Method == http.MethodOptions {
		resp := &Response{Status: http.StatusNoContent, Header: CORSHeaders(rc, cfg)}
		if len(cfg.AllowedMethods) > 0 {
			resp.Header.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
		}
		if len(cfg.AllowedHeaders) > 0 {
			resp.Header.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
		}
		if cfg.MaxAge > 0 {
			resp.Header.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}
		return resp
	}

	if cfg.SkipSameOrigin && rc.SameOrigin() {
		return nil
	}
	if allowsAnyOrigin(cfg.AllowedOrigins) {
		return nil
	}
	if rc.Origin == nil || !OriginAllowed(*rc.Origin, cfg.AllowedOrigins) {
		return errorResponse(CodeCORSOriginNotAllowed, "Origin not allowed")
	}
	return nil
}

// CORSHeaders returns the Access-Control-Allow-Origin/Credentials headers for an
// allowed origin, or an empty header set.
func CORSHeaders(rc *RequestContext, cfg CORSConfig) http.Header {
	h := http.Header{}
	if rc.Origin == nil || *rc.Origin == "" {
		return h
	}
	origin := *rc.Origin
	if !OriginAllowed(origin, cfg.AllowedOrigins) {
		return h
	}
	if allowsAnyOrigin(cfg.AllowedOrigins) && !cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Origin", "*")
		return h
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	if cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	return h
}

// OriginAllowed matches origin against allowed entries: "*" matches everything,
// "*.example.com" (optionally with a scheme) matches subdomains of example.com, any
// other entry must match exactly.
func OriginAllowed(origin string, allowed []string) bool {
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "*":
			return true
		case strings.EqualFold(strings.TrimRight(entry, "/"), strings.TrimRight(origin, "/")):
			return true
		case strings.Contains(entry, "*."):
			if wildcardMatch(origin, entry) {
				return true
			}
		}
	}
	return false
}

func allowsAnyOrigin(allowed []string) bool {
	for _, entry := range allowed {
		if strings.TrimSpace(entry) == "*" {
			return true
		}
	}
	return false
}

func wildcardMatch(origin, entry string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	scheme, pattern, hasScheme := strings.Cut(entry, "://")
	if !hasScheme {
		pattern = entry
	} else if !strings.EqualFold(scheme, u.Scheme) {
		return false
	}
	suffix := strings.ToLower(strings.TrimPrefix(pattern, "*"))
	host := strings.ToLower(u.Hostname())
	if strings.Contains(suffix, ":") {
		host = strings.ToLower(u.Host)
	}
	return strings.HasSuffix(host, suffix) && len(host) > len(suffix)
}
