package service

import (
	"context"
	"errors"
	"time"

	"bastion/internal/auth/models"
	"bastion/internal/sentinel"
	id "bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/middleware/requesttime"
	"bastion/pkg/platform/tracer"
)

// Login outcome labels for metrics and spans.
const (
	outcomeSuccess            = "success"
	outcomeUnknownEmail       = "unknown_email"
	outcomeLocked             = "locked"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeError              = "error"
)

// Login checks credentials under the lockout policy and issues a token.
//
// An unknown email spends a dummy bcrypt comparison and answers
// invalid_credentials like a wrong password. A locked account is rejected
// before the password is checked. A mismatch is recorded atomically by the
// store, which may lock the account; the response is still invalid_credentials.
// A correct password never clears a lock that concurrent failures applied
// after the account was read; the store refuses and the caller gets
// account_locked.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (result *models.AuthResult, err error) {
	start := time.Now()
	defer s.observeLoginDuration(start)
	emailHash := tracer.HashEmail(req.Email)
	ctx, span := s.tracer.Start(ctx, tracer.SpanLogin, tracer.String(tracer.AttrEmailHash, emailHash))
	outcome := outcomeError
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
		s.incrementLoginAttempt(outcome)
		span.End(err)
	}()

	account, err := s.accounts.FindByEmail(ctx, models.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.hasher.DummyCompare(req.Password)
			outcome = outcomeUnknownEmail
			s.authFailure(ctx, outcomeUnknownEmail, false, "email_hash", emailHash)
			return nil, invalidCredentials()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	span.SetAttributes(tracer.String(tracer.AttrAccountID, account.ID.String()))

	now := requesttime.Now(ctx)
	if decision := s.lockout.Evaluate(account.LockState(), now); decision.Locked {
		return nil, s.rejectLocked(ctx, account.ID, decision.UnlocksIn, span, &outcome)
	}

	ok, err := s.hasher.Compare(account.PasswordHash, req.Password)
	if err != nil {
		s.authFailure(ctx, "password_compare_failed", true, "account_id", account.ID.String(), "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify credentials")
	}
	if !ok {
		return nil, s.recordMismatch(ctx, account, now, span, &outcome)
	}

	if err := s.accounts.RecordSuccess(ctx, account.ID, now); err != nil {
		if errors.Is(err, sentinel.ErrLocked) {
			// concurrent failures locked the account while the hash was compared
			return nil, s.rejectLocked(ctx, account.ID, s.currentUnlocksIn(ctx, account.ID, now), span, &outcome)
		}
		return nil, storeError(err, invalidCredentials(), "failed to record login")
	}
	account.ClearLockout()
	outcome = outcomeSuccess
	s.logAudit(ctx, eventLoginSucceeded, "account_id", account.ID.String())

	return s.issue(ctx, account)
}

func (s *Service) rejectLocked(ctx context.Context, accountID id.AccountID, unlocksIn time.Duration, span tracer.Span, outcome *string) error {
	*outcome = outcomeLocked
	span.SetAttributes(tracer.Bool(tracer.AttrLocked, true))
	s.authFailure(ctx, outcomeLocked, false,
		"account_id", accountID.String(),
		"unlocks_in", unlocksIn.String(),
	)
	return accountLocked(unlocksIn)
}

// currentUnlocksIn re-reads the lock a store write refused to clear. A failed
// read reports zero rather than hiding the lock behind an internal error.
func (s *Service) currentUnlocksIn(ctx context.Context, accountID id.AccountID, now time.Time) time.Duration {
	current, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to re-read lock state", "account_id", accountID.String(), "error", err)
		return 0
	}
	return s.lockout.Evaluate(current.LockState(), now).UnlocksIn
}

// recordMismatch counts a wrong password. If another request locked the account
// between our read and the write, the caller learns about the lock.
func (s *Service) recordMismatch(ctx context.Context, account *models.Account, now time.Time, span tracer.Span, outcome *string) error {
	transition, err := s.accounts.RecordFailedAttempt(ctx, account.ID, s.lockout, now)
	if err != nil {
		s.authFailure(ctx, "record_failure_failed", true, "account_id", account.ID.String(), "error", err)
		return storeError(err, invalidCredentials(), "failed to record login failure")
	}

	if transition.AlreadyLocked {
		return s.rejectLocked(ctx, account.ID, s.lockout.Evaluate(transition.State, now).UnlocksIn, span, outcome)
	}

	*outcome = outcomeInvalidCredentials
	s.authFailure(ctx, outcomeInvalidCredentials, false,
		"account_id", account.ID.String(),
		"failed_login_count", transition.State.FailedLoginCount,
	)
	if transition.NewlyLocked {
		span.AddEvent(tracer.EventLockoutTriggered, tracer.String(tracer.AttrAccountID, account.ID.String()))
		s.incrementLockouts()
		s.logAudit(ctx, eventAccountLocked,
			"account_id", account.ID.String(),
			"locked_until", transition.State.LockedUntil,
		)
	}
	return invalidCredentials()
}
