package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"coverline/internal/ratelimit/models"
)

// InMemoryStore is a per-process sliding window limiter. It serves alone when
// Redis is not configured and as the fallback while Redis is failing.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{windows: make(map[string][]time.Time), now: time.Now}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit models.Limit) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hits := prune(s.windows[key], now.Add(-limit.Window))

	if len(hits) >= limit.Requests {
		s.windows[key] = hits
		resetAt := now.Add(limit.Window)
		if len(hits) > 0 {
			resetAt = hits[0].Add(limit.Window)
		}
		return &models.Result{
			Allowed:    false,
			Limit:      limit.Requests,
			ResetAt:    resetAt,
			RetryAfter: retryAfter(resetAt.Sub(now)),
		}, nil
	}

	hits = append(hits, now)
	s.windows[key] = hits
	return &models.Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(hits),
		ResetAt:   hits[0].Add(limit.Window),
	}, nil
}

// prune drops timestamps at or before cutoff. Timestamps are kept in
// ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func retryAfter(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
