package ternsecure

import (
	"net/http"
	"strings"
)

// ValidateSecurity runs the CSRF origin check, the required-header check and the
// user-agent filter, in that order.
func ValidateSecurity(rc *RequestContext, cfg SecurityConfig) *Response {
	if resp := checkCSRFOrigin(rc, cfg); resp != nil {
		return resp
	}
	if resp := checkRequiredHeaders(rc, cfg.RequiredHeaders); resp != nil {
		return resp
	}
	return checkUserAgent(rc, cfg.AllowedUserAgents, cfg.BlockedUserAgents)
}

// checkCSRFOrigin only applies to cross-origin requests: both Origin and Host are
// present and the host of Origin is not Host.
func checkCSRFOrigin(rc *RequestContext, cfg SecurityConfig) *Response {
	if !cfg.RequireCSRF || rc.Origin == nil || rc.Host == nil {
		return nil
	}
	host := *rc.Host
	if originMatchesHost(*rc.Origin, host) {
		return nil
	}
	if rc.Headers.Get("X-Requested-With") == "XMLHttpRequest" {
		return nil
	}
	if rc.Referer != nil {
		referer := *rc.Referer
		if originMatchesHost(referer, host) {
			return nil
		}
		for _, allowed := range cfg.AllowedReferers {
			if allowed != "" && strings.HasPrefix(referer, allowed) {
				return nil
			}
		}
	}
	return errorResponse(CodeCSRFProtection, "Cross-site request rejected")
}

func checkRequiredHeaders(rc *RequestContext, required map[string]string) *Response {
	for name, want := range required {
		values, ok := rc.Headers[http.CanonicalHeaderKey(name)]
		if !ok || len(values) == 0 || values[0] != want {
			return errorResponse(CodeInvalidHeaders, "Missing or invalid header: "+name)
		}
	}
	return nil
}

// checkUserAgent matches case-insensitive substrings. The block list wins over the
// allow list; a non-empty allow list rejects agents it does not name.
func checkUserAgent(rc *RequestContext, allowed, blocked []string) *Response {
	if len(allowed) == 0 && len(blocked) == 0 {
		return nil
	}
	ua := ""
	if rc.UserAgent != nil {
		ua = strings.ToLower(*rc.UserAgent)
	}
	for _, b := range blocked {
		if b != "" && strings.Contains(ua, strings.ToLower(b)) {
			return errorResponse(CodeUserAgentBlocked, "User agent not allowed")
		}
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if a != "" && strings.Contains(ua, strings.ToLower(a)) {
			return nil
		}
	}
	return errorResponse(CodeUserAgentBlocked, "User agent not allowed")
}
