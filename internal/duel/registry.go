package duel

import "sync"

// Registry is the concurrency-safe store of active sessions keyed by duel
// ID. Contention is light since each operation touches a single session.
type Registry struct {
	liveness Liveness

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds a registry. liveness may be nil.
func NewRegistry(liveness Liveness) *Registry {
	return &Registry{
		liveness: liveness,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the session for duelID, calling create under the
// registry lock when absent. create errors leave the registry unchanged.
func (r *Registry) GetOrCreate(duelID string, create func() (*Session, error)) (*Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[duelID]; ok {
		return session, false, nil
	}
	session, err := create()
	if err != nil {
		return nil, false, err
	}
	r.sessions[duelID] = session
	if r.liveness != nil {
		r.liveness.MarkAlive(duelID)
	}
	return session, true, nil
}

// Get looks up an active session.
func (r *Registry) Get(duelID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[duelID]
	return session, ok
}

// Evict tears the session down and removes it. No-op when absent.
func (r *Registry) Evict(duelID string) {
	r.mu.Lock()
	session, ok := r.sessions[duelID]
	if ok {
		delete(r.sessions, duelID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	session.teardown()
	if r.liveness != nil {
		r.liveness.Clear(duelID)
	}
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
