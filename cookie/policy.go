package cookie

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Environment selects environment defaults.
type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
)

// ParseEnvironment maps "production"/"prod" to Production and everything else to Development.
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

const (
	// MinSessionMaxAge is the shortest accepted session lifetime in seconds (5 minutes).
	MinSessionMaxAge = 300
	// MaxSessionMaxAge is the longest accepted session lifetime in seconds (14 days).
	MaxSessionMaxAge = 1209600
	// DefaultSessionMaxAge is used when no layer sets a session lifetime (5 days).
	DefaultSessionMaxAge = 432000

	idTokenMaxAge     = 3600
	customTokenMaxAge = 3600
)

// ValidateSessionMaxAge reports whether seconds lies in [MinSessionMaxAge, MaxSessionMaxAge].
// Out-of-range values are rejected, never clamped.
func ValidateSessionMaxAge(seconds int) bool {
	return seconds >= MinSessionMaxAge && seconds <= MaxSessionMaxAge
}

// ErrInvalidMaxAge is returned for session lifetimes outside the accepted range.
var ErrInvalidMaxAge = fmt.Errorf("session max age must be between %d and %d seconds", MinSessionMaxAge, MaxSessionMaxAge)

// Config is the handler-level cookie configuration.
type Config struct {
	Domain   string `yaml:"domain" json:"domain"`
	Path     string `yaml:"path" json:"path"`
	SameSite string `yaml:"same_site" json:"same_site"`
	Secure   *bool  `yaml:"secure" json:"secure"`
	HTTPOnly *bool  `yaml:"http_only" json:"http_only"`
	// MaxAge is the session lifetime in seconds; zero means DefaultSessionMaxAge.
	MaxAge int `yaml:"max_age" json:"max_age"`
}

// Override carries per-call attribute overrides. Nil fields defer to lower layers.
// A session MaxAge is only honoured inside the accepted range; Options falls back to
// the configured lifetime and SessionCookieOptions reports the rejection.
type Override struct {
	Domain   *string
	Path     *string
	SameSite *http.SameSite
	Secure   *bool
	HTTPOnly *bool
	MaxAge   *int
}

// Spec is a fully resolved cookie description. MaxAge is in seconds; zero means the
// cookie is being deleted.
type Spec struct {
	Name     string
	Path     string
	Domain   string
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

// Cookie renders s with value.
func (s Spec) Cookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     s.Name,
		Value:    value,
		Path:     s.Path,
		Domain:   s.Domain,
		HttpOnly: s.HTTPOnly,
		Secure:   s.Secure,
		SameSite: s.SameSite,
	}
	if s.MaxAge <= 0 {
		c.Value = ""
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		return c
	}
	c.MaxAge = s.MaxAge
	return c
}

// Policy resolves cookie specs for one environment. It is immutable after NewPolicy.
type Policy struct {
	config   Config
	env      Environment
	sameSite http.SameSite
}

// NewPolicy validates cfg and returns a Policy.
func NewPolicy(cfg Config, env Environment) (*Policy, error) {
	if cfg.MaxAge != 0 && !ValidateSessionMaxAge(cfg.MaxAge) {
		return nil, ErrInvalidMaxAge
	}
	sameSite, err := ParseSameSite(cfg.SameSite)
	if err != nil {
		return nil, err
	}
	if env != Production {
		env = Development
	}
	return &Policy{config: cfg, env: env, sameSite: sameSite}, nil
}

// Environment returns the policy environment.
func (p *Policy) Environment() Environment { return p.env }

// SessionMaxAge returns the configured session lifetime in seconds.
func (p *Policy) SessionMaxAge() int {
	if p.config.MaxAge != 0 {
		return p.config.MaxAge
	}
	return DefaultSessionMaxAge
}

// SessionCookieOptions resolves the session cookie. An override MaxAge outside
// [MinSessionMaxAge, MaxSessionMaxAge] returns ErrInvalidMaxAge.
func (p *Policy) SessionCookieOptions(o *Override) (Spec, error) {
	if o != nil && o.MaxAge != nil && !ValidateSessionMaxAge(*o.MaxAge) {
		return Spec{}, ErrInvalidMaxAge
	}
	return p.Options(Session, o), nil
}

// IDTokenCookieOptions resolves the ID-token cookie with handler defaults.
func (p *Policy) IDTokenCookieOptions() Spec { return p.Options(IDToken, nil) }

// RefreshTokenCookieOptions resolves the refresh-token cookie with handler defaults.
func (p *Policy) RefreshTokenCookieOptions() Spec { return p.Options(RefreshToken, nil) }

// CustomTokenCookieOptions resolves the custom-token cookie with handler defaults.
func (p *Policy) CustomTokenCookieOptions() Spec { return p.Options(CustomToken, nil) }

// CSRFCookieOptions resolves the CSRF cookie, which scripts must be able to read.
func (p *Policy) CSRFCookieOptions() Spec { return p.Options(CSRFToken, nil) }

// DeleteOptions resolves kind with MaxAge zero so that rendering it clears the cookie.
func (p *Policy) DeleteOptions(kind TokenKind, o *Override) Spec {
	spec := p.Options(kind, o)
	spec.MaxAge = 0
	return spec
}

// Options resolves kind through the precedence chain.
func (p *Policy) Options(kind TokenKind, o *Override) Spec {
	if o == nil {
		o = &Override{}
	}
	prod := p.env == Production

	spec := Spec{
		Path:     firstString(o.Path, p.config.Path, "/"),
		Domain:   firstString(o.Domain, p.config.Domain, ""),
		Secure:   firstBool(o.Secure, p.config.Secure, prod),
		HTTPOnly: firstBool(o.HTTPOnly, p.config.HTTPOnly, true),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   p.maxAge(kind, o.MaxAge),
	}
	switch {
	case o.SameSite != nil:
		spec.SameSite = *o.SameSite
	case p.config.SameSite != "":
		spec.SameSite = p.sameSite
	case kind == CSRFToken:
		spec.SameSite = http.SameSiteStrictMode
	}

	if kind == CSRFToken {
		spec.HTTPOnly = false
	}
	if prod {
		spec.Secure = true
		if kind != CSRFToken {
			spec.HTTPOnly = true
		}
	}
	if spec.SameSite == http.SameSiteNoneMode {
		spec.Secure = true
	}

	spec.Name = p.name(kind, spec.Domain)
	if strings.HasPrefix(spec.Name, HostPrefix) {
		spec.Path = "/"
		spec.Domain = ""
	}
	return spec
}

func (p *Policy) maxAge(kind TokenKind, override *int) int {
	switch kind {
	case IDToken:
		if override != nil && *override > 0 {
			return *override
		}
		return idTokenMaxAge
	case CustomToken:
		if override != nil && *override > 0 {
			return *override
		}
		return customTokenMaxAge
	default:
		if override != nil && ValidateSessionMaxAge(*override) {
			return *override
		}
		return p.SessionMaxAge()
	}
}

// ParseSameSite maps lax, strict, none, or "" (lax) to http.SameSite.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, errors.New("same_site must be one of lax, strict, none")
	}
}

func firstString(override *string, configured, fallback string) string {
	if override != nil {
		return *override
	}
	if configured != "" {
		return configured
	}
	return fallback
}

func firstBool(override, configured *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	if configured != nil {
		return *configured
	}
	return fallback
}
