package lock

import (
	"context"
	"sync"
	"time"
)

// implements Store in process memory, for tests and single-node development
type MemoryStore struct {
	mu     sync.Mutex
	locks  map[string]memoryLock
	done   chan struct{}
	closed bool
	now    func() time.Time
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// creates a new in-memory lock store
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		locks: make(map[string]memoryLock),
		done:  make(chan struct{}),
		now:   time.Now,
	}

	go store.cleanupLoop()

	return store
}

func (s *MemoryStore) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if held, ok := s.locks[key]; ok && now.Before(held.expiresAt) {
		return false, nil
	}

	s.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.locks[key]
	if !ok || held.token != token || !s.now().Before(held.expiresAt) {
		return false, nil
	}

	delete(s.locks, key)
	return true, nil
}

// stops the cleanup goroutine
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.done)
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, held := range s.locks {
		if !now.Before(held.expiresAt) {
			delete(s.locks, key)
		}
	}
}
