package bucket

import (
	"context"
	"sync"
	"time"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/platform/middleware/requesttime"
)

// InMemoryBucketStore keeps sliding windows in process memory. Counters are
// per node; multi-node deployments use the PostgreSQL or Redis store.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*slidingWindow
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

// tryConsume records one hit when it fits under limit.
func (sw *slidingWindow) tryConsume(limit int, now time.Time) (allowed bool, remaining int, resetAt time.Time) {
	sw.dropBefore(now.Add(-sw.window))

	if len(sw.timestamps) >= limit {
		return false, 0, sw.timestamps[0].Add(sw.window)
	}

	sw.timestamps = append(sw.timestamps, now)
	return true, limit - len(sw.timestamps), sw.timestamps[0].Add(sw.window)
}

// dropBefore removes timestamps at or before cutoff and returns how many went.
func (sw *slidingWindow) dropBefore(cutoff time.Time) int {
	i := 0
	for ; i < len(sw.timestamps); i++ {
		if sw.timestamps[i].After(cutoff) {
			break
		}
	}
	sw.timestamps = sw.timestamps[i:]
	return i
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{
		buckets: make(map[string]*slidingWindow),
	}
}

// Allow checks if a request is allowed and records it when it is.
func (s *InMemoryBucketStore) Allow(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	if err := validate(key, limit); err != nil {
		return nil, err
	}
	now := requesttime.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[key]
	if !ok {
		bucket = &slidingWindow{window: limit.Window}
		s.buckets[key] = bucket
	}
	bucket.window = limit.Window
	allowed, remaining, resetAt := bucket.tryConsume(limit.Requests, now)

	return models.NewResult(allowed, limit.Requests, remaining, resetAt, now), nil
}

// Reset clears the counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// CurrentCount returns the hits inside the window ending now.
func (s *InMemoryBucketStore) CurrentCount(ctx context.Context, key string) (int, error) {
	now := requesttime.Now(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[key]
	if !ok {
		return 0, nil
	}
	bucket.dropBefore(now.Add(-bucket.window))
	return len(bucket.timestamps), nil
}

// DeleteBefore drops hits older than cutoff and forgets empty windows.
func (s *InMemoryBucketStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, bucket := range s.buckets {
		deleted += bucket.dropBefore(cutoff)
		if len(bucket.timestamps) == 0 {
			delete(s.buckets, key)
		}
	}
	return deleted, nil
}
