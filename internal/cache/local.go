package cache

import (
	"sync"
	"time"

	"github.com/woktalk/recipe-engine/internal/recipe"
)

type localEntry struct {
	payload   recipe.Payload
	expiresAt time.Time
}

// LocalStore is the fast in-process tier. Reads and writes are guarded by a
// RWMutex so a Set racing concurrent Gets is linearizable: a reader sees
// either the whole previous value or the whole new one.
type LocalStore struct {
	mu      sync.RWMutex
	entries map[recipe.Key]localEntry
	clock   recipe.Clock
}

// NewLocalStore constructs a LocalStore.
func NewLocalStore(clock recipe.Clock) *LocalStore {
	if clock == nil {
		clock = systemClock{}
	}
	return &LocalStore{
		entries: make(map[recipe.Key]localEntry),
		clock:   clock,
	}
}

// Get returns the payload for the key if present and unexpired. Expired
// entries are dropped lazily on read.
func (s *LocalStore) Get(key recipe.Key) (recipe.Payload, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && s.clock.Now().After(entry.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a fresher Set may have raced in.
		if current, still := s.entries[key]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return entry.payload, true
}

// Set stores the payload with the given TTL. A zero TTL means no expiry.
func (s *LocalStore) Set(key recipe.Key, value recipe.Payload, ttl time.Duration) {
	entry := localEntry{payload: value}
	if ttl > 0 {
		entry.expiresAt = s.clock.Now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

// Delete removes the key. Missing keys are a no-op.
func (s *LocalStore) Delete(key recipe.Key) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len reports the number of resident entries, including not-yet-collected
// expired ones.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
