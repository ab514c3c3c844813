package session

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryEntries bounds the memory store so a flood of abandoned
// logins cannot grow it without limit.
const DefaultMemoryEntries = 100_000

// MemoryStore keeps values in process memory. mu serialises Put against the
// Get and Remove pair in Take. It only works when a single
// instance serves both legs of the login.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.LRU[string, string]
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: lru.NewLRU[string, string](size, nil, ttl)}
}

func memoryKey(sessionID, key string) string {
	return sessionID + "\x00" + key
}

func (m *MemoryStore) Put(_ context.Context, sessionID, key, value string) error {
	if sessionID == "" {
		return errors.New("session: empty session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Add(memoryKey(sessionID, key), value)
	return nil
}

func (m *MemoryStore) Take(_ context.Context, sessionID, key string) (string, error) {
	if sessionID == "" {
		return "", ErrNotFound
	}
	k := memoryKey(sessionID, key)

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(k)
	if !ok {
		return "", ErrNotFound
	}
	m.cache.Remove(k)
	return v, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Len reports live entries.
func (m *MemoryStore) Len() int { return m.cache.Len() }
