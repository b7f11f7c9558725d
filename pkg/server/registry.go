package server

import (
	"sync"
)

// Registry is the set of currently open sessions, read by the broadcast
// fan-out loop. Add and Remove are idempotent; Remove on an absent session
// is a no-op.
type Registry struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[*Session]struct{}),
	}
}

// Add registers a session. Adding an already-registered session is a no-op,
// so a session appears in the registry at most once.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
}

// Remove deregisters a session.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the registered sessions at this instant. Fan-out iterates
// the snapshot, so concurrent add/remove never tears an iteration.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		result = append(result, s)
	}
	return result
}
