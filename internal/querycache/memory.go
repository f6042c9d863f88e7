package querycache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps cache rows in a process-local map. It is only suitable
// for single-process deployments; multi-process setups should use the
// postgres store behind the same interface.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, queryHash string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[queryHash]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if !entry.ExpiresAt.After(s.now()) {
		return Entry{}, ErrNotFound
	}
	entry.HitCount++
	s.entries[queryHash] = entry
	return entry, nil
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.HitCount = 0
	s.entries[entry.QueryHash] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, queryHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, queryHash)
	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for hash, entry := range s.entries {
		if !entry.ExpiresAt.After(now) {
			delete(s.entries, hash)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := Stats{}
	for _, entry := range s.entries {
		stats.TotalEntries++
		stats.TotalHits += entry.HitCount
		if !entry.ExpiresAt.After(now) {
			stats.ExpiredEntries++
		}
	}
	if stats.TotalEntries > 0 {
		stats.AvgHitCount = float64(stats.TotalHits) / float64(stats.TotalEntries)
	}
	return stats, nil
}
