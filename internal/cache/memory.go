package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type MemoryProvider struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
	now   func() time.Time
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

const defaultMemoryCacheSize = 10_000

func NewMemoryProvider() (*MemoryProvider, error) {
	return newMemoryProvider(defaultMemoryCacheSize)
}

func newMemoryProvider(size int) (*MemoryProvider, error) {
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &MemoryProvider{cache: c, now: time.Now}, nil
}

func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), cached.value...), nil
}

func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Add(key, m.newEntry(value, ttl))
	return nil
}

func (m *MemoryProvider) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.cache.Add(key, m.newEntry(value, ttl))
	return true, nil
}

func (m *MemoryProvider) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

func (m *MemoryProvider) Close() error {
	return nil
}

// live returns the entry for key, evicting it if it has expired. Callers hold mu.
func (m *MemoryProvider) live(key string) (entry, bool) {
	cached, ok := m.cache.Get(key)
	if !ok {
		return entry{}, false
	}
	if !m.now().Before(cached.expiresAt) {
		m.cache.Remove(key)
		return entry{}, false
	}
	return cached, true
}

func (m *MemoryProvider) newEntry(value []byte, ttl time.Duration) entry {
	return entry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}
}
