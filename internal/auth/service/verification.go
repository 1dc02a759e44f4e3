package service

import (
	"context"

	"bastion/internal/auth/models"
	id "bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/tracer"
)

// RequestEmailVerification sends a verification token to the account's address.
// Verified accounts are a no-op.
func (s *Service) RequestEmailVerification(ctx context.Context, accountID id.AccountID) (err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRequestVerify, tracer.String(tracer.AttrAccountID, accountID.String()))
	defer func() { span.End(err) }()

	if err = s.lifecycle.RequestVerification(ctx, accountID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeFailedToSendEmail) {
			s.incrementMailDeliveryFailures("email_verification")
			s.logger.ErrorContext(ctx, eventMailDeliveryFailure,
				"account_id", accountID.String(),
				"message_type", "email_verification",
				"error", err,
			)
		}
		return passThrough(err, "failed to request email verification")
	}
	s.logAudit(ctx, eventVerificationSent, "account_id", accountID.String())
	return nil
}

// VerifyEmail redeems a verification token and returns the verified account.
func (s *Service) VerifyEmail(ctx context.Context, req *models.VerifyEmailRequest) (view *models.AccountView, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyEmail)
	defer func() { span.End(err) }()

	account, err := s.lifecycle.ConsumeVerification(ctx, req.Token)
	if err != nil {
		s.authFailure(ctx, "verify_"+string(dErrors.CodeOf(err)), dErrors.CodeOf(err) == dErrors.CodeInternal)
		return nil, passThrough(err, "failed to verify email")
	}
	s.incrementEmailsVerified()
	s.logAudit(ctx, eventEmailVerified, "account_id", account.ID.String())
	v := models.NewAccountView(account)
	return &v, nil
}

// GetAccount returns the public view of an account.
func (s *Service) GetAccount(ctx context.Context, accountID id.AccountID) (*models.AccountView, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, storeError(err, dErrors.New(dErrors.CodeUserNotFound, "account not found"), "failed to load account")
	}
	v := models.NewAccountView(account)
	return &v, nil
}
