package session

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no entry exists for a session id.
	ErrNotFound = errors.New("session context not found")
	// ErrCorrupt is returned when a stored entry cannot be decoded.
	ErrCorrupt = errors.New("session context corrupt")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Context is the cached view of one authenticated session.
type Context struct {
	SessionID string
	UserID    string
	TenantID  string
	Email     string
	Claims    map[string]any

	// Unix seconds.
	ExpiresAt int64
	UpdatedAt int64
}

// Cache stores session contexts.
type Cache interface {
	Get(ctx context.Context, sessionID string) (*Context, error)
	Put(ctx context.Context, c *Context) error
	Delete(ctx context.Context, sessionID string) error
	Len(ctx context.Context) (int, error)
}

func (c *Context) clone() *Context {
	out := *c
	if c.Claims != nil {
		out.Claims = make(map[string]any, len(c.Claims))
		for k, v := range c.Claims {
			out.Claims[k] = v
		}
	}
	return &out
}
