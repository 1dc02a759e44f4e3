// Package lockout is the brute-force lockout state machine.
//
// An account is Unlocked or Locked(until). Failures on an unlocked account
// increment a counter; reaching the threshold locks the account for Duration
// and resets the counter. Attempts on a locked account change nothing. A lock
// whose instant has passed reads as unlocked, and the next write clears it.
package lockout

import "time"

const (
	DefaultThreshold = 5
	DefaultDuration  = 15 * time.Minute
)

// State is the persisted lockout-relevant slice of an account.
type State struct {
	FailedLoginCount int
	LockedUntil      *time.Time
}

// Decision is the result of evaluating a state at an instant.
type Decision struct {
	Locked    bool
	UnlocksIn time.Duration
}

// Transition is the outcome of recording a failure.
type Transition struct {
	State State
	// NewlyLocked is true only for the failure that reached the threshold.
	NewlyLocked bool
	// AlreadyLocked is true when the failure hit a live lock and was not counted.
	AlreadyLocked bool
}

// Policy holds the threshold and lock duration.
type Policy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultPolicy locks for 15 minutes after 5 consecutive failures.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Duration: DefaultDuration}
}

// New returns a policy, substituting defaults for non-positive values.
func New(threshold int, duration time.Duration) Policy {
	p := DefaultPolicy()
	if threshold > 0 {
		p.Threshold = threshold
	}
	if duration > 0 {
		p.Duration = duration
	}
	return p
}

// Evaluate reports whether s is locked at now. Locked means LockedUntil > now.
func (p Policy) Evaluate(s State, now time.Time) Decision {
	if s.LockedUntil == nil || !s.LockedUntil.After(now) {
		return Decision{}
	}
	return Decision{Locked: true, UnlocksIn: s.LockedUntil.Sub(now)}
}

// RecordFailure applies one credential mismatch at now.
func (p Policy) RecordFailure(s State, now time.Time) Transition {
	if p.Evaluate(s, now).Locked {
		return Transition{State: s, AlreadyLocked: true}
	}

	count := s.FailedLoginCount
	if s.LockedUntil != nil {
		// expired lock: counting restarts
		count = 0
	}
	count++

	if count >= p.Threshold {
		until := now.Add(p.Duration)
		return Transition{
			State:       State{FailedLoginCount: 0, LockedUntil: &until},
			NewlyLocked: true,
		}
	}
	return Transition{State: State{FailedLoginCount: count}}
}

// RecordSuccess returns the unlocked zero state.
func (p Policy) RecordSuccess(State) State {
	return State{}
}
