package cookie

import (
	"net/http"
	"sync"
)

// Store is the cookie storage a handler reads from and writes to.
type Store interface {
	Get(name string) (string, bool)
	Set(spec Spec, value string)
	Delete(spec Spec)
}

// Jar is a Store over an inbound request. Writes are buffered until Pending is
// drained, so a handler can discard them when a later step fails.
type Jar struct {
	mu       sync.Mutex
	incoming map[string]string
	pending  []*http.Cookie
}

// NewJar snapshots the cookies of r.
func NewJar(r *http.Request) *Jar {
	incoming := make(map[string]string)
	if r != nil {
		for _, c := range r.Cookies() {
			if _, seen := incoming[c.Name]; !seen {
				incoming[c.Name] = c.Value
			}
		}
	}
	return &Jar{incoming: incoming}
}

// NewJarFromMap builds a Jar over already-parsed cookies.
func NewJarFromMap(cookies map[string]string) *Jar {
	incoming := make(map[string]string, len(cookies))
	for k, v := range cookies {
		incoming[k] = v
	}
	return &Jar{incoming: incoming}
}

// Get returns the latest value for name, including writes buffered in this jar.
func (j *Jar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.pending) - 1; i >= 0; i-- {
		if j.pending[i].Name == name {
			if j.pending[i].MaxAge < 0 {
				return "", false
			}
			return j.pending[i].Value, true
		}
	}
	v, ok := j.incoming[name]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Set buffers a cookie write.
func (j *Jar) Set(spec Spec, value string) {
	j.mu.Lock()
	j.pending = append(j.pending, spec.Cookie(value))
	j.mu.Unlock()
}

// Delete buffers a cookie removal.
func (j *Jar) Delete(spec Spec) {
	spec.MaxAge = 0
	j.mu.Lock()
	j.pending = append(j.pending, spec.Cookie(""))
	j.mu.Unlock()
}

// Pending returns and clears the buffered writes.
func (j *Jar) Pending() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.pending
	j.pending = nil
	return out
}

// Discard drops buffered writes.
func (j *Jar) Discard() {
	j.mu.Lock()
	j.pending = nil
	j.mu.Unlock()
}
