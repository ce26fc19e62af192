package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	grant    Grant
	deadline time.Time
}

// MemoryStore — токены в памяти процесса (expirable LRU).
// Подходит только для развёртывания в один экземпляр.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, memoryEntry]
	now   func() time.Time
}

// NewMemoryStore создаёт хранилище на maxSize токенов.
// maxTTL ограничивает время жизни записи в LRU, ttl конкретного токена может быть меньше.
func NewMemoryStore(maxSize int, maxTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: expirable.NewLRU[string, memoryEntry](maxSize, nil, maxTTL),
		now:   time.Now,
	}
}

// Put сохраняет токен.
func (s *MemoryStore) Put(_ context.Context, token string, grant Grant, ttl time.Duration) error {
	s.mu.Lock()
	s.cache.Add(token, memoryEntry{grant: grant, deadline: s.now().Add(ttl)})
	s.mu.Unlock()
	observe("put", nil)
	return nil
}

// TakeOnce извлекает и удаляет токен.
func (s *MemoryStore) TakeOnce(_ context.Context, token string) (Grant, error) {
	s.mu.Lock()
	entry, ok := s.cache.Peek(token)
	if ok {
		s.cache.Remove(token)
	}
	s.mu.Unlock()

	if !ok || !s.now().Before(entry.deadline) {
		observe("take", ErrNotFound)
		return Grant{}, ErrNotFound
	}
	observe("take", nil)
	return entry.grant, nil
}
