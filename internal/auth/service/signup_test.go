package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/mock/gomock"

	"bastion/internal/auth/models"
	jwttoken "bastion/internal/jwt_token"
	"bastion/internal/sentinel"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/middleware/requesttime"
)

func (s *ServiceSuite) TestSignup() {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := requesttime.WithTime(context.Background(), now)

	s.Run("creates account with default role and issues token", func() {
		var created *models.Account
		s.mockHasher.EXPECT().Hash("Str0ngPass").Return("hashed", nil)
		s.mockAccounts.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a *models.Account) error {
				created = a
				return nil
			})
		s.mockTokens.EXPECT().Issue(gomock.Any(), gomock.Any(), "user").
			Return(jwttoken.SignedToken{Token: "tok", ExpiresAt: now.Add(time.Hour)}, nil)

		res, err := s.service.Signup(ctx, &models.SignupRequest{
			Email:    "new@example.com",
			Password: "Str0ngPass",
			Name:     "New Person",
		})
		s.Require().NoError(err)
		s.Equal("tok", res.Token)
		s.Equal("new@example.com", res.User.Email)
		s.Equal(models.RoleUser, res.User.Role)
		s.Equal("New Person", res.User.Name)

		s.Require().NotNil(created)
		s.Equal("hashed", created.PasswordHash)
		s.Zero(created.FailedLoginCount)
		s.Nil(created.LockedUntil)
		s.Nil(created.ResetToken)
		s.Equal(now, created.CreatedAt)
	})

	s.Run("employer role is accepted", func() {
		s.mockHasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		s.mockAccounts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mockTokens.EXPECT().Issue(gomock.Any(), gomock.Any(), "employer").Return(jwttoken.SignedToken{Token: "tok"}, nil)

		res, err := s.service.Signup(ctx, &models.SignupRequest{Email: "e@example.com", Password: "Str0ngPass", Role: "employer"})
		s.Require().NoError(err)
		s.Equal(models.RoleEmployer, res.User.Role)
	})

	s.Run("weak password is rejected before any write", func() {
		_, err := s.service.Signup(ctx, &models.SignupRequest{Email: "w@example.com", Password: "weakpass"})
		s.True(dErrors.HasCode(err, dErrors.CodeWeakPassword))
	})

	s.Run("admin role cannot be self-assigned", func() {
		_, err := s.service.Signup(ctx, &models.SignupRequest{Email: "a@example.com", Password: "Str0ngPass", Role: "admin"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate email maps to email_in_use", func() {
		s.mockHasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		s.mockAccounts.EXPECT().Create(gomock.Any(), gomock.Any()).
			Return(fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyUsed))

		_, err := s.service.Signup(ctx, &models.SignupRequest{Email: "dup@example.com", Password: "Str0ngPass"})
		s.True(dErrors.HasCode(err, dErrors.CodeEmailInUse))
	})

	s.Run("store failure is internal", func() {
		s.mockHasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		s.mockAccounts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

		_, err := s.service.Signup(ctx, &models.SignupRequest{Email: "x@example.com", Password: "Str0ngPass"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("token failure is internal", func() {
		s.mockHasher.EXPECT().Hash(gomock.Any()).Return("hashed", nil)
		s.mockAccounts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mockTokens.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Return(jwttoken.SignedToken{}, errors.New("sign"))

		_, err := s.service.Signup(ctx, &models.SignupRequest{Email: "y@example.com", Password: "Str0ngPass"})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
