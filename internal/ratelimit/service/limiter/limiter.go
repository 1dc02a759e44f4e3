// Package limiter applies per-bucket sliding-window ceilings to client keys.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bastion/internal/ratelimit/metrics"
	"bastion/internal/ratelimit/models"
	dErrors "bastion/pkg/domain-errors"
)

// BucketStore records hits and answers whether one more fits.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error)
}

// DefaultLimits are used for buckets the caller does not configure.
var DefaultLimits = map[models.Bucket]models.Limit{
	models.BucketAccountMutation: {Requests: 10, Window: time.Minute},
	models.BucketPasswordReset:   {Requests: 5, Window: 15 * time.Minute},
}

type Limiter struct {
	store   BucketStore
	limits  map[models.Bucket]models.Limit
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Limiter)

// WithLimit overrides the ceiling of one bucket.
func WithLimit(bucket models.Bucket, limit models.Limit) Option {
	return func(l *Limiter) {
		l.limits[bucket] = limit
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(store BucketStore, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	l := &Limiter{
		store:  store,
		limits: make(map[models.Bucket]models.Limit, len(DefaultLimits)),
		logger: slog.Default(),
	}
	for b, lim := range DefaultLimits {
		l.limits[b] = lim
	}
	for _, opt := range opts {
		opt(l)
	}
	for b, lim := range l.limits {
		if err := lim.Validate(); err != nil {
			return nil, fmt.Errorf("bucket %s: %w", b, err)
		}
	}
	return l, nil
}

// Limit returns the configured ceiling for bucket.
func (l *Limiter) Limit(bucket models.Bucket) (models.Limit, bool) {
	lim, ok := l.limits[bucket]
	return lim, ok
}

// MaxWindow is the longest configured window; older hits can never matter.
func (l *Limiter) MaxWindow() time.Duration {
	var longest time.Duration
	for _, lim := range l.limits {
		longest = max(longest, lim.Window)
	}
	return longest
}

// Allow records a hit for clientKey in bucket and reports whether it fits.
// Store failures are returned as-is; the caller decides whether to fail open.
func (l *Limiter) Allow(ctx context.Context, clientKey string, bucket models.Bucket) (*models.RateLimitResult, error) {
	limit, ok := l.limits[bucket]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unknown rate limit bucket %q", bucket))
	}
	if clientKey == "" {
		clientKey = "unknown"
	}

	start := time.Now()
	res, err := l.store.Allow(ctx, models.Key(clientKey, bucket), limit)
	if l.metrics != nil {
		l.metrics.ObserveCheckDuration(bucket.String(), time.Since(start).Seconds())
	}
	if err != nil {
		if l.metrics != nil {
			l.metrics.IncrementStoreError(bucket.String())
		}
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if l.metrics != nil {
		l.metrics.IncrementDecision(bucket.String(), res.Allowed)
	}
	return res, nil
}
