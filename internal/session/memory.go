package session

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memorySessions bounds the in-process table; the least recently used
// session is dropped first.
const memorySessions = 100_000

// MemoryStore keeps sessions in process. Suitable for a single replica.
type MemoryStore struct {
	sessions *lru.Cache[string, memoryEntry]
	now      func() time.Time
}

type memoryEntry struct {
	data      *Data
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	// lru.New only fails for a non-positive size.
	sessions, _ := lru.New[string, memoryEntry](memorySessions)
	return &MemoryStore{sessions: sessions, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Data, bool) {
	entry, ok := s.sessions.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		s.sessions.Remove(key)
		return nil, false
	}
	return cloneData(entry.data), true
}

func (s *MemoryStore) Set(_ context.Context, key string, data *Data, ttl time.Duration) {
	if key == "" || data == nil {
		return
	}
	s.sessions.Add(key, memoryEntry{data: cloneData(data), expiresAt: s.now().Add(ttl)})
}

func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.sessions.Remove(key)
}

func (s *MemoryStore) Close() error {
	s.sessions.Purge()
	return nil
}
