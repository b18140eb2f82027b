package ticket

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process, mutex-guarded Store used by tests and by
// deployments that run without a shared Redis instance. A background
// goroutine sweeps expired entries so the map does not grow unbounded.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Record
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryStore starts a MemoryStore with its sweep goroutine running.
// Call Close to stop the sweep goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Record),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) sweepLoop() {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.entries {
		if now.After(rec.ExpiresAt) {
			delete(s.entries, id)
		}
	}
}

// Close stops the background sweep goroutine.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Issue implements Store.
func (s *MemoryStore) Issue(ctx context.Context, subject string) (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	rec := Record{
		Subject:   subject,
		ExpiresAt: s.now().Add(TTL),
	}
	s.mu.Lock()
	s.entries[id] = rec
	s.mu.Unlock()
	return id, nil
}

// Consume implements Store. Lookup, validation, and deletion happen while
// holding the store's single mutex, so it is atomic with respect to other
// Consume calls racing on the same id: exactly one wins.
func (s *MemoryStore) Consume(ctx context.Context, id string) (string, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.entries[id]
	if !ok {
		return "", ErrInvalid
	}
	delete(s.entries, id)
	if !rec.valid(now) {
		return "", ErrInvalid
	}
	return rec.Subject, nil
}
