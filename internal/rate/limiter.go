package rate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration

	EnableResetThrottle   bool
	EnableResetIPThrottle bool
	MaxResetAttempts      int
	ResetWindow           time.Duration
}

// Limiter enforces per-session refresh limits and per-address / per-IP
// password-reset limits using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts one refresh for the session and fails once the window budget
// is spent.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if !l.config.EnableRefreshThrottle || sessionID == "" {
		return nil
	}
	return l.enforce(ctx, refreshKey(sessionID), l.config.MaxRefreshAttempts, l.config.RefreshWindow)
}

// CheckPasswordReset counts one reset email for the address, and for the IP when
// IP throttling is on.
func (l *Limiter) CheckPasswordReset(ctx context.Context, email, ip string) error {
	if l.config.EnableResetThrottle {
		if err := l.enforce(ctx, resetEmailKey(email), l.config.MaxResetAttempts, l.config.ResetWindow); err != nil {
			return err
		}
	}
	if l.config.EnableResetIPThrottle && ip != "" {
		if err := l.enforce(ctx, resetIPKey(ip), l.config.MaxResetAttempts, l.config.ResetWindow); err != nil {
			return err
		}
	}
	return nil
}

// RefreshAttempts returns the current refresh counter for a session.
// Missing keys return zero.
func (l *Limiter) RefreshAttempts(ctx context.Context, sessionID string) (int, error) {
	count, err := l.redis.Get(ctx, refreshKey(sessionID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// ResetRefresh clears the refresh counter, used when a session is revoked.
func (l *Limiter) ResetRefresh(ctx context.Context, sessionID string) error {
	if err := l.redis.Del(ctx, refreshKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) enforce(ctx context.Context, key string, maxAttempts int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func refreshKey(sessionID string) string { return "tr:" + sessionID }

// Addresses are hashed so raw emails never land in Redis keys.
func resetEmailKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "tpr:" + hex.EncodeToString(sum[:16])
}

func resetIPKey(ip string) string { return "tpri:" + ip }
