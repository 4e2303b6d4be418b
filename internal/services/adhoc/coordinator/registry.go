package coordinator

import (
	"sort"
	"sync"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
)

// Registry maps registry keys to active sessions. It is the in-process answer
// to "does this channel and game slot already have a session". The map itself
// is guarded here; the sessions it holds are mutated under the coordinator's
// per-key locks.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.RegistryKey]*domain.Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.RegistryKey]*domain.Session)}
}

// Get returns the session registered under the key.
func (r *Registry) Get(key domain.RegistryKey) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[key]
	return session, ok
}

// Put registers the session under the key, replacing any previous entry.
func (r *Registry) Put(key domain.RegistryKey, session *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[key] = session
}

// Delete removes the entry for the key, if any.
func (r *Registry) Delete(key domain.RegistryKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Keys returns every registered key in sorted order.
func (r *Registry) Keys() []domain.RegistryKey {
	r.mu.RLock()
	keys := make([]domain.RegistryKey, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// HasBinding reports whether any entry, simple or composite, belongs to the
// binding.
func (r *Registry) HasBinding(bindingID string) bool {
	if bindingID == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.sessions {
		if key.BelongsTo(bindingID) {
			return true
		}
	}
	return false
}

// FindBySessionID returns the key and session for the identifier, scanning
// every entry since the caller may not know which key the session registered
// under.
func (r *Registry) FindBySessionID(sessionID string) (domain.RegistryKey, *domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key, session := range r.sessions {
		if session.ID == sessionID {
			return key, session, true
		}
	}
	return "", nil, false
}

// DeleteSessionID removes the entry holding the session, wherever it is keyed.
func (r *Registry) DeleteSessionID(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, session := range r.sessions {
		if session.ID == sessionID {
			delete(r.sessions, key)
			return
		}
	}
}

// Match pairs a registry key with the session found under it.
type Match struct {
	Key     domain.RegistryKey
	Session *domain.Session
}

// FindMember returns every session under the binding that tracks the member
// as present, in key order.
func (r *Registry) FindMember(bindingID, memberID string) []Match {
	if bindingID == "" || memberID == "" {
		return nil
	}

	r.mu.RLock()
	var matches []Match
	for key, session := range r.sessions {
		if key.BelongsTo(bindingID) && session.HasMember(memberID) {
			matches = append(matches, Match{Key: key, Session: session})
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].Key < matches[j].Key })
	return matches
}
