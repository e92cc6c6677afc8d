package jwt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ClaimSet is the decoded payload of an identity token.
//
// Numbers follow encoding/json defaults and arrive as float64.
type ClaimSet map[string]any

// Decoded is a parsed token.
type Decoded struct {
	Raw      string
	Header   map[string]any
	Claims   ClaimSet
	Verified bool
}

// FirebaseInfo mirrors the "firebase" claim.
type FirebaseInfo struct {
	SignInProvider string
	Tenant         string
	Identities     map[string]any
}

// Subject returns the sub claim.
func (c ClaimSet) Subject() string { return c.String("sub") }

// UserID returns user_id when present, else sub.
func (c ClaimSet) UserID() string {
	if uid := c.String("user_id"); uid != "" {
		return uid
	}
	return c.Subject()
}

// Email returns the email claim.
func (c ClaimSet) Email() string { return c.String("email") }

// EmailVerified returns the email_verified claim.
func (c ClaimSet) EmailVerified() bool {
	v, _ := c["email_verified"].(bool)
	return v
}

// ExpiresAt returns exp as a time, zero when absent.
func (c ClaimSet) ExpiresAt() time.Time { return c.Time("exp") }

// IssuedAt returns iat as a time, zero when absent.
func (c ClaimSet) IssuedAt() time.Time { return c.Time("iat") }

// AuthTime returns auth_time as a time, zero when absent.
func (c ClaimSet) AuthTime() time.Time { return c.Time("auth_time") }

// SessionID returns a stable identifier for the sign-in session the token belongs to.
//
// Firebase tokens carry no sid; tokens minted from the same sign-in share sub and
// auth_time, so the pair identifies the session across refreshes.
func (c ClaimSet) SessionID() string {
	if sid := c.String("sid"); sid != "" {
		return sid
	}
	sub := c.Subject()
	if sub == "" {
		return ""
	}
	authTime := c.AuthTime()
	if authTime.IsZero() {
		return sub
	}
	return sub + ":" + strconv.FormatInt(authTime.Unix(), 10)
}

// Firebase returns the nested firebase claim.
func (c ClaimSet) Firebase() FirebaseInfo {
	raw, _ := c["firebase"].(map[string]any)
	info := FirebaseInfo{}
	if raw == nil {
		return info
	}
	info.SignInProvider, _ = raw["sign_in_provider"].(string)
	info.Tenant, _ = raw["tenant"].(string)
	info.Identities, _ = raw["identities"].(map[string]any)
	return info
}

// String returns a string claim or "".
func (c ClaimSet) String(name string) string {
	v, _ := c[name].(string)
	return v
}

// Time returns a NumericDate claim as a time or the zero time.
func (c ClaimSet) Time(name string) time.Time {
	switch v := c[name].(type) {
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9))
	case int64:
		return time.Unix(v, 0)
	case int:
		return time.Unix(int64(v), 0)
	default:
		return time.Time{}
	}
}

// Has reports whether the claim is present and truthy: true, a non-empty string,
// a non-zero number, or a non-empty list or object.
func (c ClaimSet) Has(name string) bool {
	switch v := c[name].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// HasValue reports whether the claim equals value or, for list claims, contains it.
// Comparison is case-sensitive.
func (c ClaimSet) HasValue(name, value string) bool {
	switch v := c[name].(type) {
	case string:
		return v == value
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == value {
				return true
			}
		}
		return false
	case bool:
		return strconv.FormatBool(v) == strings.ToLower(value)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64) == value
	default:
		return false
	}
}

// Custom returns the developer claims: everything outside the reserved Firebase set.
func (c ClaimSet) Custom() map[string]any {
	out := make(map[string]any)
	for k, v := range c {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

var reservedClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "auth_time": {}, "user_id": {}, "sub": {}, "iat": {}, "exp": {},
	"nbf": {}, "jti": {}, "email": {}, "email_verified": {}, "phone_number": {}, "name": {},
	"picture": {}, "firebase": {}, "sid": {},
}

func (c ClaimSet) validateFirebase(now time.Time, leeway time.Duration, requireAuthTime bool) error {
	sub := c.Subject()
	if sub == "" || len(sub) > 128 {
		return errInvalidSubject
	}
	authTime := c.AuthTime()
	if authTime.IsZero() {
		if requireAuthTime {
			return errAuthTimeAbsent
		}
		return nil
	}
	if authTime.After(now.Add(leeway)) {
		return fmt.Errorf("%w: %s", errAuthTimeFuture, authTime.UTC().Format(time.RFC3339))
	}
	return nil
}
