package session

import (
	"strings"
	"sync"
	"time"
)

// State is the isolated key-value store of one session.
// All methods are safe for concurrent use.
type State struct {
	mu       sync.Mutex
	values   map[string]any
	lastSeen time.Time
}

// NewState returns an empty State.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// GetOrDefault returns the value stored under key, seeding it with def on
// first access.
func (s *State) GetOrDefault(key string, def any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	s.values[key] = def
	return def
}

// Set stores value under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// DeletePrefix removes every key starting with prefix.
func (s *State) DeletePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			delete(s.values, k)
		}
	}
}

// Reset overwrites every key in defaults with its default value.
func (s *State) Reset(defaults map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range defaults {
		s.values[k] = v
	}
}

func (s *State) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *State) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Value is the typed form of GetOrDefault. A stored value of another type is
// replaced by def.
func Value[T any](s *State, key string, def T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		if typed, ok := v.(T); ok {
			return typed
		}
	}
	s.values[key] = def
	return def
}

// Lookup is the typed form of Get.
func Lookup[T any](s *State, key string) (T, bool) {
	v, ok := s.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
