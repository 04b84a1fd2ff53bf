package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Manager owns all live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
	idleTTL  time.Duration
	now      func() time.Time // injectable for deterministic tests
}

// NewManager creates a Manager. Sessions idle for longer than idleTTL are
// removed by Sweep; idleTTL <= 0 disables expiry.
func NewManager(idleTTL time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*State),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Create starts a new session and returns its id.
func (m *Manager) Create() (string, *State) {
	id := uuid.NewString()
	st := NewState()
	st.touch(m.now())

	m.mu.Lock()
	m.sessions[id] = st
	m.mu.Unlock()
	return id, st
}

// Get returns the session state for id and marks it as active.
func (m *Manager) Get(id string) (*State, error) {
	m.mu.RLock()
	st, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	st.touch(m.now())
	return st, nil
}

// End tears the session down. It reports whether the session existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle since before now minus the idle TTL and
// returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, st := range m.sessions {
		if st.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
