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

// Signup creates an account and returns a bearer token for it.
// Checks run before any write: password strength, then role.
func (s *Service) Signup(ctx context.Context, req *models.SignupRequest) (result *models.AuthResult, err error) {
	start := time.Now()
	defer s.observeOperation("signup", start)
	ctx, span := s.tracer.Start(ctx, tracer.SpanSignup, tracer.String(tracer.AttrEmailHash, tracer.HashEmail(req.Email)))
	defer func() { span.End(err) }()

	if !s.passwordPolicy.IsStrong(req.Password) {
		return nil, weakPassword()
	}
	role, err := models.SignupRole(req.Role)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, passThrough(err, "failed to hash password")
	}

	now := requesttime.Now(ctx)
	account := models.NewAccount(id.NewAccountID(), req.Email, hash, role, models.Profile{
		Name:     req.Name,
		Phone:    req.Phone,
		Location: req.Location,
	}, now)

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.authFailure(ctx, "email_in_use", false, "email_hash", tracer.HashEmail(req.Email))
			return nil, dErrors.New(dErrors.CodeEmailInUse, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	span.SetAttributes(tracer.String(tracer.AttrAccountID, account.ID.String()))
	s.logAudit(ctx, eventAccountCreated,
		"account_id", account.ID.String(),
		"role", role.String(),
	)
	s.incrementAccountsCreated()

	return s.issue(ctx, account)
}

// issue signs a token for account and builds the response.
func (s *Service) issue(ctx context.Context, account *models.Account) (*models.AuthResult, error) {
	signed, err := s.tokens.Issue(ctx, account.ID, account.Role.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.incrementTokensIssued()
	return &models.AuthResult{
		Token:     signed.Token,
		ExpiresAt: signed.ExpiresAt,
		User:      models.NewAccountView(account),
	}, nil
}
