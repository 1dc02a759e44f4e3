// Package sentinel holds the errors account and rate-limit stores return.
// Services map them to domain errors; nothing above the service sees them.
package sentinel

import "errors"

var (
	// ErrNotFound: no account, or the expected reset token is no longer there.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed: the email or account ID is taken.
	ErrAlreadyUsed = errors.New("already used")
	// ErrLocked: the account holds a lock that has not expired yet.
	ErrLocked = errors.New("locked")
)
