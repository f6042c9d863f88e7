// Package ratelimit bounds how many questions a subject may ask per window.
// It is an abuse damper, not a hard quota: backends are approximate across
// processes, and the subject id must always come from the authenticated
// identity, never from anything client-supplied.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store accounts one request attempt for a subject. The returned count is
// the attempt's position within the current window; a count above max means
// the attempt was refused without consuming quota.
type Store interface {
	Take(ctx context.Context, subjectID string, max int, window time.Duration) (count int, resetAt time.Time, err error)
}

type Limiter struct {
	store  Store
	max    int
	window time.Duration
}

func NewLimiter(store Store, max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, max: max, window: window}
}

func (l *Limiter) Check(ctx context.Context, subjectID string) (Decision, error) {
	count, resetAt, err := l.store.Take(ctx, subjectID, l.max, l.window)
	if err != nil {
		return Decision{}, err
	}

	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= l.max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps one fixed window per subject in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *MemoryStore) Take(_ context.Context, subjectID string, max int, windowDur time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[subjectID]
	if !ok || !w.resetAt.After(now) {
		w = &window{count: 1, resetAt: now.Add(windowDur)}
		s.windows[subjectID] = w
		return w.count, w.resetAt, nil
	}
	if w.count >= max {
		// Refused attempts do not mutate the window.
		return max + 1, w.resetAt, nil
	}
	w.count++
	return w.count, w.resetAt, nil
}
