package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bastion/internal/auth/metrics"
)

// ResetTokenStore clears one-time tokens whose expiry has passed.
type ResetTokenStore interface {
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int, error)
}

// CleanupResult summarizes the deletions performed by a cleanup run.
type CleanupResult struct {
	DeletedResetTokens int
}

// CleanupService periodically removes expired reset and verification tokens.
// Expired tokens are already rejected on use; this keeps the hash index small.
type CleanupService struct {
	store    ResetTokenStore
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// CleanupOption configures CleanupService.
type CleanupOption func(*CleanupService)

// WithCleanupInterval overrides the cleanup interval when greater than zero.
func WithCleanupInterval(interval time.Duration) CleanupOption {
	return func(s *CleanupService) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithCleanupLogger overrides the logger used for cleanup errors.
func WithCleanupLogger(logger *slog.Logger) CleanupOption {
	return func(s *CleanupService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCleanupMetrics(m *metrics.Metrics) CleanupOption {
	return func(s *CleanupService) {
		s.metrics = m
	}
}

func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(s *CleanupService) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a CleanupService with the required store and options applied.
func New(store ResetTokenStore, opts ...CleanupOption) (*CleanupService, error) {
	if store == nil {
		return nil, fmt.Errorf("reset token store is required")
	}
	svc := &CleanupService{
		store:    store,
		interval: 10 * time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *CleanupService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			res, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "auth cleanup failed", "error", err)
				continue
			}
			if res.DeletedResetTokens > 0 {
				s.logger.InfoContext(ctx, "auth cleanup completed",
					"reset_tokens_deleted", res.DeletedResetTokens,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single cleanup operation.
func (s *CleanupService) RunOnce(ctx context.Context) (CleanupResult, error) {
	deleted, err := s.store.DeleteExpiredResetTokens(ctx, s.now().UTC())
	if err != nil {
		return CleanupResult{}, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AddResetTokensCleanedUp(deleted)
	}
	return CleanupResult{DeletedResetTokens: deleted}, nil
}
