package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/mock/gomock"

	"bastion/internal/auth/lockout"
	"bastion/internal/auth/models"
	"bastion/internal/sentinel"
	dErrors "bastion/pkg/domain-errors"
)

func (s *ServiceSuite) TestRequestPasswordReset() {
	ctx := context.Background()

	s.Run("normalizes email and succeeds", func() {
		s.mockLifecycle.EXPECT().RequestReset(gomock.Any(), "ann@example.com").Return(nil)
		s.NoError(s.service.RequestPasswordReset(ctx, " Ann@Example.com"))
	})

	s.Run("delivery failure keeps its code", func() {
		s.mockLifecycle.EXPECT().RequestReset(gomock.Any(), gomock.Any()).
			Return(dErrors.Wrap(errors.New("smtp"), dErrors.CodeFailedToSendEmail, "failed to send password reset email"))

		err := s.service.RequestPasswordReset(ctx, "ann@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeFailedToSendEmail))
	})

	s.Run("unexpected failure is internal", func() {
		s.mockLifecycle.EXPECT().RequestReset(gomock.Any(), gomock.Any()).Return(errors.New("boom"))

		err := s.service.RequestPasswordReset(ctx, "ann@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestResetPassword() {
	ctx := context.Background()
	req := &models.ResetPasswordRequest{Token: "raw", NewPassword: "N3wPassword"}

	s.Run("success", func() {
		account := s.newAccount("ann@example.com")
		s.mockLifecycle.EXPECT().ConsumeReset(gomock.Any(), "raw", "N3wPassword").Return(account, nil)
		s.NoError(s.service.ResetPassword(ctx, req))
	})

	codes := []dErrors.Code{
		dErrors.CodeInvalidToken,
		dErrors.CodeTokenExpired,
		dErrors.CodeInvalidTokenType,
		dErrors.CodeWeakPassword,
		dErrors.CodeUserNotFound,
	}
	for _, code := range codes {
		s.Run("passes through "+string(code), func() {
			s.mockLifecycle.EXPECT().ConsumeReset(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil, dErrors.New(code, "msg"))

			err := s.service.ResetPassword(ctx, req)
			s.True(dErrors.HasCode(err, code))
			s.Equal("msg", err.Error())
		})
	}
}

func (s *ServiceSuite) TestChangePassword() {
	ctx := context.Background()

	s.Run("success sets the new hash", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), account.ID).Return(account, nil)
		s.mockHasher.EXPECT().Compare(account.PasswordHash, "OldPassw0rd").Return(true, nil)
		s.mockHasher.EXPECT().Hash("N3wPassword").Return("new-hash", nil)
		s.mockAccounts.EXPECT().SetPassword(gomock.Any(), account.ID, "new-hash", gomock.Any()).Return(nil)

		s.NoError(s.service.ChangePassword(ctx, &models.ChangePasswordRequest{
			AccountID:       account.ID,
			CurrentPassword: "OldPassw0rd",
			NewPassword:     "N3wPassword",
		}))
	})

	s.Run("wrong current password counts as a failed attempt", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), account.ID).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(false, nil)
		s.mockAccounts.EXPECT().RecordFailedAttempt(gomock.Any(), account.ID, gomock.Any(), gomock.Any()).
			Return(lockout.Transition{State: lockout.State{FailedLoginCount: 1}}, nil)

		err := s.service.ChangePassword(ctx, &models.ChangePasswordRequest{AccountID: account.ID, CurrentPassword: "x", NewPassword: "N3wPassword"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})

	s.Run("locked account is refused without a password check", func() {
		account := s.newAccount("ann@example.com")
		until := time.Now().Add(time.Hour)
		account.LockedUntil = &until
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), account.ID).Return(account, nil)

		err := s.service.ChangePassword(ctx, &models.ChangePasswordRequest{AccountID: account.ID, CurrentPassword: "OldPassw0rd", NewPassword: "N3wPassword"})
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("weak new password", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), account.ID).Return(account, nil)
		s.mockHasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Return(true, nil)

		err := s.service.ChangePassword(ctx, &models.ChangePasswordRequest{AccountID: account.ID, CurrentPassword: "OldPassw0rd", NewPassword: "short"})
		s.True(dErrors.HasCode(err, dErrors.CodeWeakPassword))
	})

	s.Run("unknown account", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), account.ID).Return(nil, sentinel.ErrNotFound)

		err := s.service.ChangePassword(ctx, &models.ChangePasswordRequest{AccountID: account.ID})
		s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
	})
}
