// AngelaMos | 2026
// memory.go

package ephemeral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps values in an expiring LRU. Expiry is checked on read, the
// LRU reaper only reclaims memory later.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, memoryEntry]
	now   func() time.Time
}

// NewMemoryStore holds at most size entries; maxTTL bounds how long any entry
// may physically linger.
func NewMemoryStore(size int, maxTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now:   time.Now,
	}
}

func (s *MemoryStore) Put(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.cache.Peek(key); ok && now.Before(e.expiresAt) {
		return fmt.Errorf("put ephemeral value: %w", ErrExists)
	}

	s.cache.Add(key, memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	})
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.cache.Peek(key)
	if !ok {
		return nil, fmt.Errorf("consume ephemeral value: %w", ErrNotFound)
	}
	s.cache.Remove(key)

	if !s.now().Before(e.expiresAt) {
		return nil, fmt.Errorf("consume ephemeral value: %w", ErrNotFound)
	}
	return e.value, nil
}
