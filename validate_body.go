package ternsecure

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// MaxBodyBytes caps the request body the engine reads.
const MaxBodyBytes = 1 << 20

// RequestBody is the parsed JSON body of a POST request.
type RequestBody struct {
	IDToken   string
	CSRFToken string
	Email     string
	// Fields holds every top-level member of the body.
	Fields map[string]any
}

// BodyRule is the body requirement of one sub-endpoint.
type BodyRule struct {
	RequireIDToken   bool
	RequireCSRFToken bool
	// CSRFCookieName is the cookie the csrfToken member must match.
	CSRFCookieName string
}

func (r BodyRule) strict() bool { return r.RequireIDToken || r.RequireCSRFToken }

// ValidateBody parses raw and enforces rule. A POST body that does not parse only
// fails when the rule requires a token; otherwise the handler gets an empty body.
// The CSRF token is compared in constant time.
func ValidateBody(rc *RequestContext, raw []byte, rule BodyRule) (*RequestBody, *Response) {
	body := &RequestBody{Fields: map[string]any{}}
	if rc.Method != http.MethodPost {
		return body, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		if rule.strict() {
			return nil, errorResponse(CodeInvalidRequestFormat, "Request body must be JSON")
		}
		return body, nil
	}
	if err := json.Unmarshal(trimmed, &body.Fields); err != nil {
		if rule.strict() {
			return nil, errorResponse(CodeInvalidRequestFormat, "Request body must be a JSON object")
		}
		body.Fields = map[string]any{}
		return body, nil
	}
	if body.Fields == nil {
		body.Fields = map[string]any{}
	}
	body.IDToken = stringField(body.Fields, "idToken")
	body.CSRFToken = stringField(body.Fields, "csrfToken")
	body.Email = stringField(body.Fields, "email")

	if rule.RequireIDToken && body.IDToken == "" {
		return nil, errorResponse(CodeInvalidToken, "ID token is required")
	}
	if rule.RequireCSRFToken {
		cookieToken, ok := rc.Cookie(rule.CSRFCookieName)
		if !ok {
			return nil, errorResponse(CodeCSRFCookieMissing, "CSRF cookie not found")
		}
		if body.CSRFToken == "" ||
			subtle.ConstantTimeCompare([]byte(body.CSRFToken), []byte(cookieToken)) != 1 {
			return nil, errorResponse(CodeCSRFTokenMismatch, "CSRF token mismatch")
		}
	}
	return body, nil
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return strings.TrimSpace(s)
}
