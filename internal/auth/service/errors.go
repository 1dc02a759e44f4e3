package service

import (
	"errors"
	"time"

	"bastion/internal/sentinel"
	dErrors "bastion/pkg/domain-errors"
)

// Store errors are translated here and nowhere else. Domain errors from
// collaborators pass through with their code intact.

func invalidCredentials() error {
	return dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
}

// accountLocked carries unlocks_in_ms, rounded up so clients never retry early.
func accountLocked(unlocksIn time.Duration) error {
	ms := int64((unlocksIn + time.Millisecond - 1) / time.Millisecond)
	return dErrors.NewWithDetails(dErrors.CodeAccountLocked, "account is temporarily locked", map[string]any{
		"unlocks_in_ms": ms,
	})
}

func weakPassword() error {
	return dErrors.New(dErrors.CodeWeakPassword, "password must be at least 8 characters with upper, lower case letters and a digit")
}

// storeError maps a store failure. notFound, when non-nil, replaces ErrNotFound.
func storeError(err error, notFound error, msg string) error {
	if notFound != nil && errors.Is(err, sentinel.ErrNotFound) {
		return notFound
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// passThrough keeps a collaborator's domain error as is and wraps anything else as internal.
func passThrough(err error, msg string) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
