package otp

import (
	"context"
	"sync"
	"time"
)

// Mutation receives the current challenge (nil when absent) and returns the
// replacement. A nil replacement removes the key. The returned error is handed
// back to the caller after the replacement has been applied.
type Mutation func(current *Challenge) (*Challenge, error)

// Store is a keyed expiring store. Mutate is atomic per key.
type Store interface {
	Mutate(ctx context.Context, key string, fn Mutation) error
	Get(ctx context.Context, key string) (*Challenge, error)
}

// MemoryStore keeps challenges in process memory and drops expired entries lazily.
type MemoryStore struct {
	locks shardedMutex
	mu    sync.RWMutex
	items map[string]*Challenge
	nowF  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*Challenge),
		nowF:  time.Now,
	}
}

// WithClock overrides the clock used for lazy expiry.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.nowF = now
	return s
}

func (s *MemoryStore) Mutate(ctx context.Context, key string, fn Mutation) error {
	_ = ctx
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	current := s.load(key)
	next, err := fn(current.clone())

	s.mu.Lock()
	if next == nil || next.Expired(s.nowF()) {
		delete(s.items, key)
	} else {
		s.items[key] = next.clone()
	}
	s.mu.Unlock()
	return err
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Challenge, error) {
	_ = ctx
	return s.load(key).clone(), nil
}

func (s *MemoryStore) load(key string) *Challenge {
	s.mu.RLock()
	ch, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if ch.Expired(s.nowF()) {
		s.mu.Lock()
		if cur, still := s.items[key]; still && cur == ch {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil
	}
	return ch
}

// Len reports how many entries are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// shardedMutex spreads per-key locks over 32 mutexes.
type shardedMutex struct {
	shards [32]sync.Mutex
}

func (m *shardedMutex) Lock(key string)   { m.shards[m.shardFor(key)].Lock() }
func (m *shardedMutex) Unlock(key string) { m.shards[m.shardFor(key)].Unlock() }

func (m *shardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return int(h % uint32(len(m.shards)))
}
