package service

import (
	"context"
	"errors"

	"go.uber.org/mock/gomock"

	"bastion/internal/auth/models"
	"bastion/internal/sentinel"
	id "bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
)

func (s *ServiceSuite) TestRequestEmailVerification() {
	accountID := id.NewAccountID()

	s.Run("success", func() {
		s.mockLifecycle.EXPECT().RequestVerification(gomock.Any(), accountID).Return(nil)
		s.NoError(s.service.RequestEmailVerification(context.Background(), accountID))
	})

	s.Run("delivery failure", func() {
		s.mockLifecycle.EXPECT().RequestVerification(gomock.Any(), accountID).
			Return(dErrors.New(dErrors.CodeFailedToSendEmail, "failed to send verification email"))

		err := s.service.RequestEmailVerification(context.Background(), accountID)
		s.True(dErrors.HasCode(err, dErrors.CodeFailedToSendEmail))
	})
}

func (s *ServiceSuite) TestVerifyEmail() {
	s.Run("returns the verified account", func() {
		account := s.newAccount("ann@example.com")
		account.Verified = true
		s.mockLifecycle.EXPECT().ConsumeVerification(gomock.Any(), "raw").Return(account, nil)

		view, err := s.service.VerifyEmail(context.Background(), &models.VerifyEmailRequest{Token: "raw"})
		s.Require().NoError(err)
		s.True(view.Verified)
	})

	s.Run("wrong token type", func() {
		s.mockLifecycle.EXPECT().ConsumeVerification(gomock.Any(), "raw").
			Return(nil, dErrors.New(dErrors.CodeInvalidTokenType, "token was issued for a different purpose"))

		_, err := s.service.VerifyEmail(context.Background(), &models.VerifyEmailRequest{Token: "raw"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTokenType))
	})
}

func (s *ServiceSuite) TestGetAccount() {
	s.Run("found", func() {
		account := s.newAccount("ann@example.com")
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), account.ID).Return(account, nil)

		view, err := s.service.GetAccount(context.Background(), account.ID)
		s.Require().NoError(err)
		s.Equal("ann@example.com", view.Email)
	})

	s.Run("not found", func() {
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)

		_, err := s.service.GetAccount(context.Background(), id.NewAccountID())
		s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
	})

	s.Run("store failure", func() {
		s.mockAccounts.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))

		_, err := s.service.GetAccount(context.Background(), id.NewAccountID())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
