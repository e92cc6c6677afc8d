package ternsecure

import (
	"fmt"
	"net/url"

	"github.com/ternsecure/ternsecure/jwt"
)

// AuthObject is the resolved authentication state of a request.
type AuthObject = jwt.AuthObject

// DefaultRedirectParam carries the current URL to the sign-in page.
const DefaultRedirectParam = "returnBackUrl"

// ProtectOptions configures where Protect sends rejected requests.
type ProtectOptions struct {
	// SignInURL receives unauthenticated requests with the current URL attached.
	SignInURL string `yaml:"sign_in_url"`
	// UnauthenticatedURL replaces the sign-in redirect when set.
	UnauthenticatedURL string `yaml:"unauthenticated_url"`
	// UnauthorizedURL receives requests whose predicate failed. Empty means NotFound.
	UnauthorizedURL string `yaml:"unauthorized_url"`
	RedirectParam   string `yaml:"redirect_param"`
}

func (o ProtectOptions) validate() error {
	for name, raw := range map[string]string{
		"protect.sign_in_url":         o.SignInURL,
		"protect.unauthenticated_url": o.UnauthenticatedURL,
		"protect.unauthorized_url":    o.UnauthorizedURL,
	} {
		if raw == "" {
			continue
		}
		if _, err := url.Parse(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// merge fills empty fields of o from defaults.
func (o ProtectOptions) merge(defaults ProtectOptions) ProtectOptions {
	if o.SignInURL == "" {
		o.SignInURL = defaults.SignInURL
	}
	if o.UnauthenticatedURL == "" {
		o.UnauthenticatedURL = defaults.UnauthenticatedURL
	}
	if o.UnauthorizedURL == "" {
		o.UnauthorizedURL = defaults.UnauthorizedURL
	}
	if o.RedirectParam == "" {
		o.RedirectParam = defaults.RedirectParam
	}
	return o
}

// DecisionKind is the outcome of Protect.
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionRedirect
	DecisionNotFound
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	case DecisionNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Decision is exactly one of allow, redirect to URL, or not found.
type Decision struct {
	Kind DecisionKind
	URL  string
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Kind == DecisionAllow }

// Has is the claim capability a predicate sees. AuthObject implements it.
type Has interface {
	Has(claim string) bool
	HasValue(claim, value string) bool
}

// Predicate authorizes an authenticated user from their claims.
type Predicate func(Has) bool

// Protect decides what to do with a request. It performs no I/O.
//
// Unauthenticated requests go to UnauthenticatedURL, or to SignInURL with the
// current URL in the redirect parameter. Authenticated requests failing predicate go
// to UnauthorizedURL, or are answered as not found so the route stays hidden.
func Protect(auth AuthObject, predicate Predicate, opts ProtectOptions, current *url.URL) Decision {
	if !auth.IsSignedIn() || auth.UserID == "" {
		if opts.UnauthenticatedURL != "" {
			return Decision{Kind: DecisionRedirect, URL: opts.UnauthenticatedURL}
		}
		if opts.SignInURL == "" {
			return Decision{Kind: DecisionNotFound}
		}
		return Decision{Kind: DecisionRedirect, URL: signInRedirect(opts, current)}
	}

	if predicate != nil && !predicate(auth) {
		if opts.UnauthorizedURL != "" {
			return Decision{Kind: DecisionRedirect, URL: opts.UnauthorizedURL}
		}
		return Decision{Kind: DecisionNotFound}
	}
	return Decision{Kind: DecisionAllow}
}

func signInRedirect(opts ProtectOptions, current *url.URL) string {
	if current == nil {
		return opts.SignInURL
	}
	param := opts.RedirectParam
	if param == "" {
		param = DefaultRedirectParam
	}
	target, err := url.Parse(opts.SignInURL)
	if err != nil {
		return opts.SignInURL
	}
	q := target.Query()
	q.Set(param, current.String())
	target.RawQuery = q.Encode()
	return target.String()
}

// Auth is the per-request authentication capability attached by middleware.Guard.
type Auth interface {
	// Resolve returns the verified authentication state.
	Resolve() AuthObject
	// Protect decides access. Nil opts use the engine defaults; set fields of opts
	// override them.
	Protect(predicate Predicate, opts *ProtectOptions) Decision
}

type requestAuth struct {
	object   AuthObject
	current  *url.URL
	defaults ProtectOptions
}

// NewAuth binds an AuthObject to the URL being protected.
func NewAuth(object AuthObject, current *url.URL, defaults ProtectOptions) Auth {
	return &requestAuth{object: object, current: current, defaults: defaults}
}

func (a *requestAuth) Resolve() AuthObject { return a.object }

func (a *requestAuth) Protect(predicate Predicate, opts *ProtectOptions) Decision {
	effective := a.defaults
	if opts != nil {
		effective = opts.merge(a.defaults)
	}
	return Protect(a.object, predicate, effective, a.current)
}
