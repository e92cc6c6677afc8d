package ternsecure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/ternsecure/ternsecure/cookie"
	"github.com/ternsecure/ternsecure/identity"
	"github.com/ternsecure/ternsecure/internal/rate"
	"github.com/ternsecure/ternsecure/jwt"
	"github.com/ternsecure/ternsecure/session"
)

// Builder assembles an Engine. A Builder builds exactly one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identity    IdentityClient
	admin       identity.Admin
	idKeys      jwt.KeySource
	sessionKeys jwt.KeySource
	cache       session.Cache
	httpClient  *http.Client
	tracer      trace.Tracer

	auditSink AuditSink
	logger    *slog.Logger
	handlers  []EndpointHandler
	now       func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the context cache and the rate limiter with Redis. Without it
// the cache lives in memory and rate limiting is off.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityClient replaces the identity provider REST client.
func (b *Builder) WithIdentityClient(c IdentityClient) *Builder {
	b.identity = c
	return b
}

// WithAdmin sets the Firebase admin. Without it Build initializes the Firebase Admin
// SDK from ProjectID and CredentialsPath.
func (b *Builder) WithAdmin(a identity.Admin) *Builder {
	b.admin = a
	return b
}

// WithIDTokenKeys sets the keys ID tokens are verified with. The default fetches
// Google's published JWK set.
func (b *Builder) WithIDTokenKeys(keys jwt.KeySource) *Builder {
	b.idKeys = keys
	return b
}

// WithSessionCookieKeys sets the keys session cookies are verified with. The
// default fetches Google's session cookie certificates.
func (b *Builder) WithSessionCookieKeys(keys jwt.KeySource) *Builder {
	b.sessionKeys = keys
	return b
}

// WithCache replaces the session context cache.
func (b *Builder) WithCache(c session.Cache) *Builder {
	b.cache = c
	return b
}

// WithHTTPClient sets the client used for identity provider calls and key fetches.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithTracer sets the tracer identity provider calls are recorded with.
func (b *Builder) WithTracer(t trace.Tracer) *Builder {
	b.tracer = t
	return b
}

// WithAuditSink sets the audit sink. Audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger, taking precedence over Config.Logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithHandler registers h ahead of the built-in handlers.
func (b *Builder) WithHandler(h EndpointHandler) *Builder {
	b.handlers = append(b.handlers, h)
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock replaces time.Now for token checks and cache timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = cfg.Logger
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger
	now := b.now
	if now == nil {
		now = time.Now
	}

	policy, err := cookie.NewPolicy(cfg.Cookies, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	idKeys := b.idKeys
	if idKeys == nil {
		idKeys = jwt.NewRemoteKeySet(jwt.GoogleIDTokenKeysURL, jwt.FormatJWKS, b.httpClient)
	}
	sessionKeys := b.sessionKeys
	if sessionKeys == nil {
		sessionKeys = jwt.NewRemoteKeySet(jwt.GoogleSessionCookieCertsURL, jwt.FormatX509, b.httpClient)
	}
	idCodec, err := b.codec(cfg, jwt.TypeIDToken, idKeys, now)
	if err != nil {
		return nil, err
	}
	sessionCodec, err := b.codec(cfg, jwt.TypeSessionCookie, sessionKeys, now)
	if err != nil {
		return nil, err
	}

	idp := b.identity
	if idp == nil {
		idp = identity.NewClient(identity.Config{
			BaseURL:        cfg.Identity.BaseURL,
			SecureTokenURL: cfg.Identity.SecureTokenURL,
			Version:        cfg.Identity.Version,
			TenantID:       cfg.TenantID,
			Timeout:        cfg.Identity.Timeout,
			Retry:          identity.RetryPolicy{MaxAttempts: cfg.Identity.MaxAttempts, Backoff: cfg.Identity.Backoff},
			HTTPClient:     b.httpClient,
			Tracer:         b.tracer,
		})
	}

	admin := b.admin
	if admin == nil {
		fa, err := identity.NewFirebaseAdmin(context.Background(), identity.FirebaseConfig{
			ProjectID:       cfg.ProjectID,
			CredentialsPath: cfg.CredentialsPath,
			TenantID:        cfg.TenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingAdmin, err)
		}
		admin = fa
	}

	cache := b.cache
	if cache == nil {
		if b.redis != nil {
			cache = session.NewRedisCache(b.redis, cfg.Cache.RedisPrefix, cfg.Cache.Capacity, cfg.Cache.TTL)
		} else {
			cache = session.NewMemoryCache(cfg.Cache.Capacity)
		}
	}

	var limiter *rate.Limiter
	if b.redis != nil {
		limiter = rate.New(b.redis, rate.Config{
			EnableRefreshThrottle: cfg.RateLimit.EnableRefreshThrottle,
			MaxRefreshAttempts:    cfg.RateLimit.MaxRefreshAttempts,
			RefreshWindow:         cfg.RateLimit.RefreshWindow,
			EnableResetThrottle:   cfg.RateLimit.EnableResetThrottle,
			EnableResetIPThrottle: cfg.RateLimit.EnableResetIPThrottle,
			MaxResetAttempts:      cfg.RateLimit.MaxResetAttempts,
			ResetWindow:           cfg.RateLimit.ResetWindow,
		})
	}

	proxies, err := NewProxyMatcher(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	sink := b.auditSink
	if sink == nil {
		sink = NewSlogSink(logger)
	}

	d := &deps{
		tenantID: cfg.TenantID,
		policy:   policy,
		identity: idp,
		admin:    admin,
		idCodec:  idCodec,
		auth:     &authenticator{policy: policy, sessionCodec: sessionCodec, idTokenCodec: idCodec},
		cache:    cache,
		limiter:  limiter,
		proxies:  proxies,
		logger:   logger,
		metrics:  NewMetrics(cfg.Metrics),
		audit:    newAuditDispatcher(cfg.Audit, sink, logger),
		now:      now,
	}

	registry := NewRegistry(b.handlers...)
	registry.Register(newSessionsHandler(d))
	registry.Register(newSignInsHandler(d))
	registry.Register(&UsersHandler{})

	if cfg.APIKey == "" {
		logger.Warn("ternsecure: no identity provider API key configured; provider calls will fail")
	}

	return &Engine{
		config:   cfg,
		deps:     d,
		pipeline: NewPipeline(cfg.Validation, policy.Name(cookie.CSRFToken)),
		registry: registry,
	}, nil
}

func (b *Builder) codec(cfg Config, typ jwt.TokenType, keys jwt.KeySource, now func() time.Time) (*jwt.Codec, error) {
	codec, err := jwt.NewCodec(jwt.Config{
		ProjectID:       cfg.ProjectID,
		Type:            typ,
		Algorithms:      cloneStrings(cfg.Tokens.Algorithms),
		Leeway:          cfg.Tokens.Leeway,
		RequireAuthTime: cfg.Tokens.RequireAuthTime,
		Keys:            keys,
		Now:             now,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s codec: %v", ErrInvalidConfig, typ, err)
	}
	return codec, nil
}
