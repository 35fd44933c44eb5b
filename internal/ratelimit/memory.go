package ratelimit

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps timestamp buckets in process memory. Suitable for
// single-instance deployments; quota resets on restart. Buckets for idle
// clients are evicted by the underlying cache after sitting untouched for
// twice the window.
type MemoryStore struct {
	mu      sync.Mutex
	buckets *gocache.Cache
	ttl     time.Duration
}

// NewMemoryStore creates a MemoryStore sized for the given window.
func NewMemoryStore(window time.Duration) *MemoryStore {
	ttl := 2 * window
	return &MemoryStore{
		buckets: gocache.New(ttl, window),
		ttl:     ttl,
	}
}

// Count prunes expired timestamps for clientID and returns the remainder.
// The mutex serializes the whole read-modify-write so two concurrent
// requests cannot both observe an under-quota count.
func (s *MemoryStore) Count(_ context.Context, clientID string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := s.get(clientID)
	cutoff := now.Add(-window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	s.buckets.Set(clientID, kept, s.ttl)
	return len(kept), nil
}

// Record appends now to clientID's bucket.
func (s *MemoryStore) Record(_ context.Context, clientID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := append(s.get(clientID), now)
	s.buckets.Set(clientID, stamps, s.ttl)
	return nil
}

func (s *MemoryStore) get(clientID string) []time.Time {
	if v, ok := s.buckets.Get(clientID); ok {
		return v.([]time.Time)
	}
	return nil
}
