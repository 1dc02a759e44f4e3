package cleanup

import (
	"context"
	"log/slog"
	"time"

	"bastion/internal/ratelimit/metrics"
)

// CleanupResult contains the results of a cleanup run.
type CleanupResult struct {
	EventsDeleted int
	Duration      time.Duration
}

// EventStore drops rate limit hits recorded before cutoff.
type EventStore interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Option func(*EventCleanupService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *EventCleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *EventCleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *EventCleanupService) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *EventCleanupService) {
		if now != nil {
			s.now = now
		}
	}
}

// EventCleanupService deletes hits that have aged out of every window.
// The Redis store needs no sweeping; its keys expire with the window.
type EventCleanupService struct {
	store     EventStore
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New builds the worker. retention must cover the longest configured window.
func New(store EventStore, retention time.Duration, opts ...Option) *EventCleanupService {
	service := &EventCleanupService{
		store:     store,
		retention: retention,
		logger:    slog.Default(),
		interval:  5 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *EventCleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("ratelimit_cleanup_failed", "error", err)
				if s.metrics != nil {
					s.metrics.IncrementCleanupRuns("error")
				}
				continue
			}

			s.logger.Info("ratelimit_cleanup_completed",
				"events_deleted", res.EventsDeleted,
				"duration_ms", res.Duration.Milliseconds(),
			)
			if s.metrics != nil {
				s.metrics.AddCleanupDeleted(res.EventsDeleted)
				s.metrics.IncrementCleanupRuns("success")
				s.metrics.ObserveCleanupDuration(res.Duration.Seconds())
			}

		case <-ctx.Done():
			s.logger.Info("ratelimit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run. Logging is handled by the caller (Start).
func (s *EventCleanupService) RunOnce(ctx context.Context) (*CleanupResult, error) {
	start := time.Now()
	deleted, err := s.store.DeleteBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return nil, err
	}
	return &CleanupResult{EventsDeleted: deleted, Duration: time.Since(start)}, nil
}
