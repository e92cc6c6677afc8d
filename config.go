package ternsecure

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternsecure/ternsecure/cookie"
	"github.com/ternsecure/ternsecure/identity"
)

// Config defines the engine configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Environment     cookie.Environment `yaml:"environment"`
	APIKey          string             `yaml:"api_key"`
	ProjectID       string             `yaml:"project_id"`
	TenantID        string             `yaml:"tenant_id"`
	CredentialsPath string             `yaml:"credentials_path"`

	Identity   IdentityConfig   `yaml:"identity"`
	Tokens     TokenConfig      `yaml:"tokens"`
	Cookies    cookie.Config    `yaml:"cookies"`
	Session    SessionConfig    `yaml:"session"`
	Validation ValidationConfig `yaml:"validation"`
	Cache      CacheConfig      `yaml:"cache"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Protect    ProtectOptions   `yaml:"protect"`

	// TrustedProxies lists the peer IPs and CIDR ranges whose X-Forwarded-* and
	// X-Real-IP headers are honoured. Empty means forwarded headers are ignored.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// Logger receives upstream failures and recovered panics. Nil means slog.Default().
	Logger *slog.Logger `yaml:"-"`
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig points the identity provider client at its REST surface.
type IdentityConfig struct {
	BaseURL        string        `yaml:"base_url"`
	SecureTokenURL string        `yaml:"secure_token_url"`
	Version        string        `yaml:"version"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        time.Duration `yaml:"backoff"`
}

// TokenConfig controls token verification.
type TokenConfig struct {
	// Algorithms accepted by the codecs. Firebase signs with RS256 only.
	Algorithms      []string      `yaml:"algorithms"`
	Leeway          time.Duration `yaml:"leeway"`
	RequireAuthTime bool          `yaml:"require_auth_time"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig toggles the optional parts of the session handlers.
type SessionConfig struct {
	// MintSessionCookie adds a Firebase session cookie to createsession.
	MintSessionCookie bool `yaml:"mint_session_cookie"`
	// RevokeOnSignOut revokes the user's refresh tokens on revoke (best effort).
	RevokeOnSignOut bool `yaml:"revoke_on_sign_out"`
}

// CacheConfig sizes the session context cache.
type CacheConfig struct {
	Capacity    int           `yaml:"capacity"`
	TTL         time.Duration `yaml:"ttl"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

// RateLimitConfig throttles refresh and password-reset traffic. It only applies
// when the engine has a Redis client.
type RateLimitConfig struct {
	EnableRefreshThrottle bool          `yaml:"enable_refresh_throttle"`
	MaxRefreshAttempts    int           `yaml:"max_refresh_attempts"`
	RefreshWindow         time.Duration `yaml:"refresh_window"`
	EnableResetThrottle   bool          `yaml:"enable_reset_throttle"`
	EnableResetIPThrottle bool          `yaml:"enable_reset_ip_throttle"`
	MaxResetAttempts      int           `yaml:"max_reset_attempts"`
	ResetWindow           time.Duration `yaml:"reset_window"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
VALIDATION CONFIG
====================================
*/

// ValidationConfig composes the validation stages. It is read once at Build.
type ValidationConfig struct {
	CORS      CORSConfig                `yaml:"cors"`
	Security  SecurityConfig            `yaml:"security"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints"`
}

// CORSConfig configures the CORS stage. An AllowedOrigins entry "*" allows every
// origin; "*.example.com" allows subdomains of example.com.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge         int  `yaml:"max_age"`
	SkipSameOrigin bool `yaml:"skip_same_origin"`
}

// SecurityConfig configures the security stage.
type SecurityConfig struct {
	RequireCSRF     bool     `yaml:"require_csrf"`
	AllowedReferers []string `yaml:"allowed_referers"`
	// RequiredHeaders maps a header name to the exact value it must carry.
	RequiredHeaders   map[string]string `yaml:"required_headers"`
	AllowedUserAgents []string          `yaml:"allowed_user_agents"`
	BlockedUserAgents []string          `yaml:"blocked_user_agents"`
}

// EndpointConfig enables an endpoint group and its sub-endpoints.
type EndpointConfig struct {
	Enabled            bool                         `yaml:"enabled"`
	Methods            []string                     `yaml:"methods"`
	RequireSubEndpoint bool                         `yaml:"require_sub_endpoint"`
	SubEndpoints       map[string]SubEndpointConfig `yaml:"sub_endpoints"`
}

// SubEndpointConfig enables one sub-endpoint and its body requirements.
type SubEndpointConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Methods          []string `yaml:"methods"`
	RequireIDToken   bool     `yaml:"require_id_token"`
	RequireCSRFToken bool     `yaml:"require_csrf_token"`
}

// AllowsMethod reports whether method is listed. OPTIONS is always allowed.
func (e EndpointConfig) AllowsMethod(method string) bool {
	return allowsMethod(e.Methods, method)
}

// AllowsMethod reports whether method is listed. OPTIONS is always allowed.
func (s SubEndpointConfig) AllowsMethod(method string) bool {
	return allowsMethod(s.Methods, method)
}

func allowsMethod(methods []string, method string) bool {
	if method == http.MethodOptions {
		return true
	}
	for _, m := range methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Endpoint names served by the built-in handlers.
const (
	EndpointSessions = "sessions"
	EndpointSignIns  = "signIns"
	EndpointUsers    = "users"
)

// Sub-endpoint names served by the built-in handlers.
const (
	SubVerify             = "verify"
	SubCreateSession      = "createsession"
	SubRefresh            = "refresh"
	SubRevoke             = "revoke"
	SubResetPasswordEmail = "resetPasswordEmail"
	SubPasswordResetEmail = "passwordResetEmail"
	SubCreate             = "create"
)

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a development configuration with every built-in endpoint
// enabled. ProjectID and APIKey still need to be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	post := []string{http.MethodPost}
	return Config{
		Environment: cookie.Development,
		Identity: IdentityConfig{
			BaseURL:        identity.DefaultBaseURL,
			SecureTokenURL: identity.DefaultSecureTokenURL,
			Version:        identity.DefaultVersion,
			Timeout:        10 * time.Second,
			MaxAttempts:    3,
			Backoff:        100 * time.Millisecond,
		},
		Tokens: TokenConfig{
			Algorithms: []string{"RS256"},
			Leeway:     30 * time.Second,
		},
		Cookies: cookie.Config{
			Path:     "/",
			SameSite: "lax",
			MaxAge:   cookie.DefaultSessionMaxAge,
		},
		Validation: ValidationConfig{
			CORS: CORSConfig{
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
				AllowCredentials: true,
				MaxAge:           86400,
				SkipSameOrigin:   true,
			},
			Security: SecurityConfig{
				RequireCSRF: true,
			},
			Endpoints: map[string]EndpointConfig{
				EndpointSessions: {
					Enabled:            true,
					Methods:            []string{http.MethodGet, http.MethodPost},
					RequireSubEndpoint: true,
					SubEndpoints: map[string]SubEndpointConfig{
						SubVerify:        {Enabled: true, Methods: []string{http.MethodGet}},
						SubCreateSession: {Enabled: true, Methods: post, RequireIDToken: true, RequireCSRFToken: true},
						SubRefresh:       {Enabled: true, Methods: post, RequireIDToken: true},
						SubRevoke:        {Enabled: true, Methods: post},
					},
				},
				EndpointSignIns: {
					Enabled:            true,
					Methods:            post,
					RequireSubEndpoint: true,
					SubEndpoints: map[string]SubEndpointConfig{
						SubResetPasswordEmail: {Enabled: true, Methods: post},
						SubPasswordResetEmail: {Enabled: true, Methods: post},
						SubCreate:             {Enabled: true, Methods: post},
					},
				},
				EndpointUsers: {
					Enabled: true,
					Methods: []string{http.MethodGet, http.MethodPost},
				},
			},
		},
		Cache: CacheConfig{
			Capacity:    10000,
			TTL:         time.Hour,
			RedisPrefix: "tern",
		},
		RateLimit: RateLimitConfig{
			EnableRefreshThrottle: true,
			MaxRefreshAttempts:    20,
			RefreshWindow:         time.Minute,
			EnableResetThrottle:   true,
			EnableResetIPThrottle: true,
			MaxResetAttempts:      5,
			ResetWindow:           15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Protect: ProtectOptions{
			SignInURL:     "/sign-in",
			RedirectParam: DefaultRedirectParam,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.Algorithms = cloneStrings(cfg.Tokens.Algorithms)
	out.TrustedProxies = cloneStrings(cfg.TrustedProxies)
	out.Validation.CORS.AllowedOrigins = cloneStrings(cfg.Validation.CORS.AllowedOrigins)
	out.Validation.CORS.AllowedMethods = cloneStrings(cfg.Validation.CORS.AllowedMethods)
	out.Validation.CORS.AllowedHeaders = cloneStrings(cfg.Validation.CORS.AllowedHeaders)
	out.Validation.Security.AllowedReferers = cloneStrings(cfg.Validation.Security.AllowedReferers)
	out.Validation.Security.AllowedUserAgents = cloneStrings(cfg.Validation.Security.AllowedUserAgents)
	out.Validation.Security.BlockedUserAgents = cloneStrings(cfg.Validation.Security.BlockedUserAgents)
	if cfg.Validation.Security.RequiredHeaders != nil {
		out.Validation.Security.RequiredHeaders = make(map[string]string, len(cfg.Validation.Security.RequiredHeaders))
		for k, v := range cfg.Validation.Security.RequiredHeaders {
			out.Validation.Security.RequiredHeaders[k] = v
		}
	}
	if cfg.Validation.Endpoints != nil {
		out.Validation.Endpoints = make(map[string]EndpointConfig, len(cfg.Validation.Endpoints))
		for name, ep := range cfg.Validation.Endpoints {
			ep.Methods = cloneStrings(ep.Methods)
			if ep.SubEndpoints != nil {
				subs := make(map[string]SubEndpointConfig, len(ep.SubEndpoints))
				for subName, sub := range ep.SubEndpoints {
					sub.Methods = cloneStrings(sub.Methods)
					subs[subName] = sub
				}
				ep.SubEndpoints = subs
			}
			out.Validation.Endpoints[name] = ep
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Environment {
	case cookie.Production, cookie.Development:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		return fmt.Errorf("project_id is required")
	}

	// Tokens
	if len(c.Tokens.Algorithms) == 0 {
		return fmt.Errorf("tokens.algorithms must not be empty")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return fmt.Errorf("tokens.leeway must be within [0, 2m]")
	}

	// Identity
	if c.Identity.Timeout <= 0 {
		return fmt.Errorf("identity.timeout must be > 0")
	}
	if c.Identity.MaxAttempts < 1 {
		return fmt.Errorf("identity.max_attempts must be >= 1")
	}
	if c.Identity.Backoff < 0 {
		return fmt.Errorf("identity.backoff must be >= 0")
	}

	// Cookies
	if c.Cookies.MaxAge != 0 && !cookie.ValidateSessionMaxAge(c.Cookies.MaxAge) {
		return cookie.ErrInvalidMaxAge
	}
	if c.Cookies.SameSite != "" {
		if _, err := cookie.ParseSameSite(c.Cookies.SameSite); err != nil {
			return err
		}
	}

	// Cache
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be > 0")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0")
	}

	// Rate limits
	if c.RateLimit.EnableRefreshThrottle && (c.RateLimit.MaxRefreshAttempts <= 0 || c.RateLimit.RefreshWindow <= 0) {
		return fmt.Errorf("rate_limit refresh throttle requires max_refresh_attempts and refresh_window > 0")
	}
	if (c.RateLimit.EnableResetThrottle || c.RateLimit.EnableResetIPThrottle) &&
		(c.RateLimit.MaxResetAttempts <= 0 || c.RateLimit.ResetWindow <= 0) {
		return fmt.Errorf("rate_limit reset throttle requires max_reset_attempts and reset_window > 0")
	}

	if c.Audit.BufferSize < 0 {
		return fmt.Errorf("audit.buffer_size must be >= 0")
	}

	if _, err := NewProxyMatcher(c.TrustedProxies); err != nil {
		return err
	}

	if err := c.Protect.validate(); err != nil {
		return err
	}
	return c.Validation.validate()
}

func (v *ValidationConfig) validate() error {
	for _, origin := range v.CORS.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("validation.cors.allowed_origins contains an empty entry")
		}
	}
	if v.CORS.MaxAge < 0 {
		return fmt.Errorf("validation.cors.max_age must be >= 0")
	}
	for _, referer := range v.Security.AllowedReferers {
		if _, err := url.Parse(referer); err != nil {
			return fmt.Errorf("validation.security.allowed_referers: %w", err)
		}
	}
	for name, ep := range v.Endpoints {
		if name == "" {
			return fmt.Errorf("validation.endpoints contains an unnamed endpoint")
		}
		if err := validateMethods(ep.Methods); err != nil {
			return fmt.Errorf("validation.endpoints[%s]: %w", name, err)
		}
		for subName, sub := range ep.SubEndpoints {
			if subName == "" {
				return fmt.Errorf("validation.endpoints[%s] contains an unnamed sub-endpoint", name)
			}
			if err := validateMethods(sub.Methods); err != nil {
				return fmt.Errorf("validation.endpoints[%s][%s]: %w", name, subName, err)
			}
		}
	}
	return nil
}

func validateMethods(methods []string) error {
	for _, m := range methods {
		switch strings.ToUpper(m) {
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions:
		default:
			return fmt.Errorf("unsupported method %q", m)
		}
	}
	return nil
}
