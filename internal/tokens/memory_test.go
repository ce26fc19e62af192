package tokens

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStore_TakeOnce(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	ctx := context.Background()
	grant := Grant{UploadID: "id-1", Slug: "abc123", ExpiresAt: time.Now().Add(time.Hour)}

	if err := s.Put(ctx, "tok", grant, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.TakeOnce(ctx, "tok")
	if err != nil {
		t.Fatalf("TakeOnce: %v", err)
	}
	if got.UploadID != "id-1" || got.Slug != "abc123" {
		t.Errorf("TakeOnce: получено %+v", got)
	}
	if _, err := s.TakeOnce(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный TakeOnce: ожидалось ErrNotFound, получено %v", err)
	}
	if _, err := s.TakeOnce(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный токен: ожидалось ErrNotFound, получено %v", err)
	}
}

func TestMemoryStore_Expired(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	ctx := context.Background()
	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Put(ctx, "tok", Grant{Slug: "abc123"}, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := s.TakeOnce(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Errorf("истёкший токен: ожидалось ErrNotFound, получено %v", err)
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	s := NewMemoryStore(2, time.Hour)
	ctx := context.Background()
	for _, tok := range []string{"a", "b", "c"} {
		_ = s.Put(ctx, tok, Grant{Slug: tok}, time.Minute)
	}
	if _, err := s.TakeOnce(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("вытесненный токен: ожидалось ErrNotFound, получено %v", err)
	}
	if _, err := s.TakeOnce(ctx, "c"); err != nil {
		t.Errorf("TakeOnce(c): %v", err)
	}
}

func TestMemoryStore_ConcurrentTake(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	ctx := context.Background()
	_ = s.Put(ctx, "tok", Grant{Slug: "abc123"}, time.Minute)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TakeOnce(ctx, "tok"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("ожидался 1 успешный TakeOnce, получено %d", wins.Load())
	}
}
