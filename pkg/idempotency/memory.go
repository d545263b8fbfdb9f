package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	processing bool
	resp       Response
	storedAt   time.Time
}

// MemoryStore keeps idempotency state in a process-local map. Entries older
// than the TTL are invisible to Begin immediately and physically removed by a
// janitor goroutine on the sweep interval.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	ttl   time.Duration
	sweep time.Duration
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore builds the store and starts its janitor.
func NewMemoryStore(ttl, sweepInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		sweep:   sweepInterval,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

// Begin implements Store.
func (s *MemoryStore) Begin(_ context.Context, key string) (BeginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Sub(e.storedAt) < s.ttl {
		if e.processing {
			return BeginResult{State: StateInFlight}, nil
		}
		resp := e.resp
		resp.Body = append([]byte(nil), e.resp.Body...)
		return BeginResult{State: StateReplay, Response: &resp}, nil
	}

	s.entries[key] = &memoryEntry{processing: true, storedAt: now}
	return BeginResult{State: StateStarted}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp.Body = append([]byte(nil), resp.Body...)
	s.entries[key] = &memoryEntry{resp: resp, storedAt: s.now()}
	return nil
}

// Abort implements Store.
func (s *MemoryStore) Abort(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired(s.now())
		}
	}
}

func (s *MemoryStore) removeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if now.Sub(e.storedAt) >= s.ttl {
			delete(s.entries, key)
		}
	}
}
