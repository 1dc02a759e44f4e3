package service

import (
	"context"
	"time"

	"bastion/internal/auth/models"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/middleware/requesttime"
	"bastion/pkg/platform/tracer"
)

// RequestPasswordReset issues a reset token for email. Unknown emails succeed
// silently. A mail hand-off failure returns failed_to_send_email; the HTTP
// layer still answers success so the endpoint cannot be used to probe accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	start := time.Now()
	defer s.observeOperation("request_password_reset", start)
	emailHash := tracer.HashEmail(email)
	ctx, span := s.tracer.Start(ctx, tracer.SpanRequestReset, tracer.String(tracer.AttrEmailHash, emailHash))
	defer func() { span.End(err) }()

	err = s.lifecycle.RequestReset(ctx, models.NormalizeEmail(email))
	switch {
	case err == nil:
		s.incrementResetRequests("accepted")
		s.logAudit(ctx, eventResetRequested, "email_hash", emailHash)
		return nil
	case dErrors.HasCode(err, dErrors.CodeFailedToSendEmail):
		s.incrementResetRequests("delivery_failed")
		s.incrementMailDeliveryFailures("password_reset")
		s.logger.ErrorContext(ctx, eventMailDeliveryFailure,
			"email_hash", emailHash,
			"message_type", "password_reset",
			"error", err,
		)
		return err
	default:
		s.incrementResetRequests("error")
		return passThrough(err, "failed to request password reset")
	}
}

// ResetPassword redeems a reset token and sets a new password. The same write
// clears the token and any lockout.
func (s *Service) ResetPassword(ctx context.Context, req *models.ResetPasswordRequest) (err error) {
	start := time.Now()
	defer s.observeOperation("reset_password", start)
	ctx, span := s.tracer.Start(ctx, tracer.SpanResetPassword)
	defer func() { span.End(err) }()

	account, err := s.lifecycle.ConsumeReset(ctx, req.Token, req.NewPassword)
	if err != nil {
		s.authFailure(ctx, "reset_"+string(dErrors.CodeOf(err)), dErrors.CodeOf(err) == dErrors.CodeInternal)
		return passThrough(err, "failed to reset password")
	}
	span.SetAttributes(tracer.String(tracer.AttrAccountID, account.ID.String()))
	s.incrementResetsCompleted()
	s.logAudit(ctx, eventPasswordReset, "account_id", account.ID.String())
	return nil
}

// ChangePassword replaces the password of an authenticated account after
// checking the current one. The current password is guessed under the same
// lockout as login: a locked account is refused before the compare and a
// mismatch counts as a failed attempt. Success clears the reset token and
// any lockout.
func (s *Service) ChangePassword(ctx context.Context, req *models.ChangePasswordRequest) (err error) {
	start := time.Now()
	defer s.observeOperation("change_password", start)
	ctx, span := s.tracer.Start(ctx, tracer.SpanChangePassword, tracer.String(tracer.AttrAccountID, req.AccountID.String()))
	outcome := outcomeError
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
		span.End(err)
	}()

	account, err := s.accounts.FindByID(ctx, req.AccountID)
	if err != nil {
		return storeError(err, dErrors.New(dErrors.CodeUserNotFound, "account not found"), "failed to load account")
	}

	now := requesttime.Now(ctx)
	if decision := s.lockout.Evaluate(account.LockState(), now); decision.Locked {
		return s.rejectLocked(ctx, account.ID, decision.UnlocksIn, span, &outcome)
	}

	ok, err := s.hasher.Compare(account.PasswordHash, req.CurrentPassword)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify credentials")
	}
	if !ok {
		return s.recordMismatch(ctx, account, now, span, &outcome)
	}
	if !s.passwordPolicy.IsStrong(req.NewPassword) {
		outcome = "weak_password"
		return weakPassword()
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return passThrough(err, "failed to hash password")
	}
	if err := s.accounts.SetPassword(ctx, account.ID, hash, now); err != nil {
		return storeError(err, dErrors.New(dErrors.CodeUserNotFound, "account not found"), "failed to update password")
	}
	outcome = outcomeSuccess
	s.logAudit(ctx, eventPasswordChanged, "account_id", account.ID.String())
	return nil
}
