package ternsecure

import (
	"context"
	"sync"

	"github.com/ternsecure/ternsecure/cookie"
)

// Call is everything a handler receives for one request.
type Call struct {
	Request *RequestContext
	// Body is the parsed POST body; empty for other methods.
	Body *RequestBody
	// Cookies reads request cookies and stages response cookies. Staged writes are
	// committed only with a non-error response.
	Cookies cookie.Store
	Config  *Config
}

// EndpointHandler serves one endpoint group.
type EndpointHandler interface {
	CanHandle(endpoint string) bool
	Handle(ctx context.Context, call *Call) *Response
}

// EndpointFunc adapts a function to EndpointHandler for a single endpoint name.
// Use it through a pointer so Registry.Remove can compare it.
type EndpointFunc struct {
	Endpoint string
	Fn       func(ctx context.Context, call *Call) *Response
}

func (f *EndpointFunc) CanHandle(endpoint string) bool { return endpoint == f.Endpoint }

func (f *EndpointFunc) Handle(ctx context.Context, call *Call) *Response {
	return f.Fn(ctx, call)
}

// Registry is an ordered set of handlers resolved by first match. Register and
// Remove may run concurrently with Resolve.
//
// Handlers are compared with ==, so register pointers.
type Registry struct {
	mu       sync.RWMutex
	handlers []EndpointHandler
}

// NewRegistry returns a registry holding handlers in order.
func NewRegistry(handlers ...EndpointHandler) *Registry {
	r := &Registry{}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register appends h. Handlers registered earlier win.
func (r *Registry) Register(h EndpointHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// RegisterFirst inserts h ahead of every registered handler.
func (r *Registry) RegisterFirst(h EndpointHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.handlers = append([]EndpointHandler{h}, r.handlers...)
	r.mu.Unlock()
}

// Remove deletes h and reports whether it was registered.
func (r *Registry) Remove(h EndpointHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, registered := range r.handlers {
		if registered == h {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Resolve returns the first handler that can serve endpoint, or nil.
func (r *Registry) Resolve(endpoint string) EndpointHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.CanHandle(endpoint) {
			return h
		}
	}
	return nil
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
