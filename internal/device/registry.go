package device

import (
	"fmt"
	"sync"
)

// Registry maps device paths to their live sessions. It is the one shared
// mutable structure in the pipeline, used by button monitors during
// reconnection; the mutex is held only for the map operation itself, never
// across device I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session under the given device path. Duplicate paths are
// a configuration error and are rejected.
func (r *Registry) Add(path string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[path]; exists {
		return fmt.Errorf("device: path %q already registered", path)
	}
	r.sessions[path] = s
	return nil
}

// Remove deletes the session registered under path, if any, and reports
// whether one was present.
func (r *Registry) Remove(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[path]; !exists {
		return false
	}
	delete(r.sessions, path)
	return true
}

// Get returns the session registered under path, or nil.
func (r *Registry) Get(path string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[path]
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns the current path → state mapping, for health reporting.
func (r *Registry) Snapshot() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.sessions))
	for path, s := range r.sessions {
		out[path] = s.State()
	}
	return out
}
