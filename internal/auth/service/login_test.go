package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"bastion/internal/auth/lockout"
	"bastion/internal/auth/models"
	jwttoken "bastion/internal/jwt_token"
	"bastion/internal/sentinel"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/middleware/requesttime"
)

func (s *ServiceSuite) TestLogin() {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := requesttime.WithTime(context.Background(), now)
	req := &models.LoginRequest{Email: "ann@example.com", Password: "Str0ngPass"}

	s.Run("success resets lockout and issues token", func() {
		account := s.newAccount("ann@example.com")
		account.FailedLoginCount = 3
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), "ann@example.com").Return(account, nil)
		s.mockHasher.EXPECT().Compare(account.PasswordHash, "Str0ngPass").Return(true, nil)
		s.mockAccounts.EXPECT().RecordSuccess(gomock.Any(), account.ID, now).Return(nil)
		s.mockTokens.EXPECT().Issue(gomock.Any(), account.ID, "user").
			Return(jwttoken.SignedToken{Token: "tok", ExpiresAt: now.Add(time.Hour)}, nil)

		res, err := s.service.Login(ctx, req)
		s.Require().NoError(err)
		s.Equal("tok", res.Token)
		s.Equal(account.ID.String(), res.User.ID)
	})

	s.Run("unknown email spends a dummy compare and answers invalid_credentials", func() {
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), "ghost@example.com").
			Return(nil, fmt.Errorf("account: %w", sentinel.ErrNotFound))
		s.mockHasher.EXPECT().DummyCompare("Str0ngPass")

		_, err := s.service.Login(ctx, &models.LoginRequest{Email: "ghost@example.com", Password: "Str0ngPass"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("email lookup is case-insensitive", func() {
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), "mixed@example.com").Return(nil, sentinel.ErrNotFound)
		s.mockHasher.EXPECT().DummyCompare(gomock.Any())

		_, err := s.service.Login(ctx, &models.LoginRequest{Email: "  Mixed@Example.COM ", Password: "x"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("locked account is rejected without a password check", func() {
		account := s.newAccount("ann@example.com")
		until := now.Add(90 * time.Second)
		account.LockedUntil = &until
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)

		_, err := s.service.Login(ctx, req)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
		var domainErr *dErrors.Error
		s.Require().True(errors.As(err, &domainErr))
		s.Equal(int64(90_000), domainErr.Details["unlocks_in_ms"])
	})

	s.Run("expired lock lets the credential check proceed", func() {
		account := s.newAccount("ann@example.com")
		until := now.Add(-time.Second)
		account.LockedUntil = &until
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockAccounts.EXPECT().RecordSuccess(gomock.Any(), account.ID, now).Return(nil)
		s.mockTokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Return(jwttoken.SignedToken{Token: "tok"}, nil)

		_, err := s.service.Login(ctx, req)
		s.NoError(err)
	})

	s.Run("mismatch records a failure and answers invalid_credentials", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(false, nil)
		s.mockAccounts.EXPECT().RecordFailedAttempt(gomock.Any(), account.ID, lockout.New(5, 15*time.Minute), now).
			Return(lockout.Transition{State: lockout.State{FailedLoginCount: 1}}, nil)

		_, err := s.service.Login(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("mismatch that reaches the threshold still answers invalid_credentials", func() {
		before := testutil.ToFloat64(s.metrics.LockoutsTriggered)
		account := s.newAccount("ann@example.com")
		until := now.Add(15 * time.Minute)
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(false, nil)
		s.mockAccounts.EXPECT().RecordFailedAttempt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(lockout.Transition{State: lockout.State{LockedUntil: &until}, NewlyLocked: true}, nil)

		_, err := s.service.Login(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
		s.InDelta(before+1, testutil.ToFloat64(s.metrics.LockoutsTriggered), 0)
	})

	s.Run("lock applied concurrently surfaces as account_locked", func() {
		account := s.newAccount("ann@example.com")
		until := now.Add(time.Minute)
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(false, nil)
		s.mockAccounts.EXPECT().RecordFailedAttempt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(lockout.Transition{State: lockout.State{LockedUntil: &until}, AlreadyLocked: true}, nil)

		_, err := s.service.Login(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("store failure while recording is internal, not a credential error", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(false, nil)
		s.mockAccounts.EXPECT().RecordFailedAttempt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(lockout.Transition{}, errors.New("connection reset"))

		_, err := s.service.Login(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("correct password does not clear a lock applied during the compare", func() {
		account := s.newAccount("ann@example.com")
		locked := *account
		until := now.Add(2 * time.Minute)
		locked.LockedUntil = &until
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockAccounts.EXPECT().RecordSuccess(gomock.Any(), account.ID, now).
			Return(fmt.Errorf("record login success: %w", sentinel.ErrLocked))
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), account.ID).Return(&locked, nil)

		_, err := s.service.Login(ctx, req)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
		var domainErr *dErrors.Error
		s.Require().True(errors.As(err, &domainErr))
		s.Equal(int64(120_000), domainErr.Details["unlocks_in_ms"])
	})

	s.Run("lookup failure is internal", func() {
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

		_, err := s.service.Login(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("malformed stored hash is internal", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).
			Return(false, dErrors.New(dErrors.CodeInternal, "could not verify password"))

		_, err := s.service.Login(ctx, req)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestAccountLockedRoundsUp() {
	err := accountLocked(1500*time.Microsecond + time.Nanosecond)
	var domainErr *dErrors.Error
	s.Require().True(errors.As(err, &domainErr))
	s.Equal(int64(2), domainErr.Details["unlocks_in_ms"])
}
