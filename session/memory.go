package session

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds caches built with a non-positive capacity.
const DefaultCapacity = 10000

// MemoryCache is a process-local Cache. Entries are ordered by last write; Put prunes
// from the oldest end once Len exceeds the capacity.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
	now      func() time.Time
}

// NewMemoryCache returns an empty MemoryCache holding at most capacity entries.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns a copy of the entry. Expired entries are removed and reported as ErrNotFound.
func (m *MemoryCache) Get(_ context.Context, sessionID string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	c := el.Value.(*Context)
	if c.ExpiresAt > 0 && m.now().Unix() >= c.ExpiresAt {
		m.order.Remove(el)
		delete(m.entries, sessionID)
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

// Put stores a copy of c, replacing any previous entry for the same session.
func (m *MemoryCache) Put(_ context.Context, c *Context) error {
	stored := c.clone()
	if stored.UpdatedAt == 0 {
		stored.UpdatedAt = m.now().Unix()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[stored.SessionID]; ok {
		el.Value = stored
		m.order.MoveToBack(el)
	} else {
		m.entries[stored.SessionID] = m.order.PushBack(stored)
	}
	for m.order.Len() > m.capacity {
		oldest := m.order.Front()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*Context).SessionID)
	}
	return nil
}

// Delete removes the entry. Deleting a missing entry is not an error.
func (m *MemoryCache) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[sessionID]; ok {
		m.order.Remove(el)
		delete(m.entries, sessionID)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryCache) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len(), nil
}
