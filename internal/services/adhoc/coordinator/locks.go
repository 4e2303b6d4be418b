package coordinator

import (
	"sync"

	"github.com/louisbranch/gathering.space/internal/services/adhoc/domain"
)

// keyedMutex serializes work per registry key so two signals for the same
// channel and game slot never interleave, while distinct keys proceed
// concurrently. Locks are kept for the process lifetime; the key space is
// bounded by the number of configured bindings and detected games.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.RegistryKey]*sync.Mutex
}

func (m *keyedMutex) lock(key domain.RegistryKey) func() {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[domain.RegistryKey]*sync.Mutex)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
