package models

import (
	"fmt"
	"time"
)

// Bucket names an independent rate-limit budget. Routes pick the bucket they spend.
type Bucket string

const (
	// BucketAccountMutation covers signup, login and password change.
	BucketAccountMutation Bucket = "account-mutation"
	// BucketPasswordReset covers forgot/reset and is stricter.
	BucketPasswordReset Bucket = "password-reset"
)

func (b Bucket) IsValid() bool {
	return b == BucketAccountMutation || b == BucketPasswordReset
}

func (b Bucket) String() string {
	return string(b)
}

// Limit allows Requests per sliding Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

func (l Limit) Validate() error {
	if l.Requests < 1 {
		return fmt.Errorf("rate limit requests must be positive, got %d", l.Requests)
	}
	if l.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", l.Window)
	}
	return nil
}

type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// NewResult fills RetryAfter from resetAt, rounding up so clients never retry early.
func NewResult(allowed bool, limit, remaining int, resetAt, now time.Time) *RateLimitResult {
	if remaining < 0 {
		remaining = 0
	}
	res := &RateLimitResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		wait := resetAt.Sub(now)
		if wait > 0 {
			res.RetryAfter = int((wait + time.Second - 1) / time.Second)
		}
	}
	return res
}
