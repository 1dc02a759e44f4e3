package models

import (
	"strings"

	id "bastion/pkg/domain"
	"bastion/pkg/validation"
)

// Password strength is checked by the service so it can answer weak_password;
// the max=72 tags only bound input to what bcrypt reads.

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name,omitempty" validate:"max=120"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=user employer"`
	Phone    string `json:"phone,omitempty" validate:"max=32"`
	Location string `json:"location,omitempty" validate:"max=120"`
}

func (r *SignupRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Location = strings.TrimSpace(r.Location)
}

func (r *SignupRequest) Validate() error {
	return validation.Validate(r)
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *LoginRequest) Validate() error {
	return validation.Validate(r)
}

// ForgotPasswordRequest is the body of POST /auth/password/forgot.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

func (r *ForgotPasswordRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func (r *ForgotPasswordRequest) Validate() error {
	return validation.Validate(r)
}

// ResetPasswordRequest is the body of POST /auth/password/reset.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,max=128"`
	NewPassword string `json:"new_password" validate:"required,max=72"`
}

func (r *ResetPasswordRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

func (r *ResetPasswordRequest) Validate() error {
	return validation.Validate(r)
}

// VerifyEmailRequest is the body of POST /auth/verify.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

func (r *VerifyEmailRequest) Normalize() {
	r.Token = strings.TrimSpace(r.Token)
}

func (r *VerifyEmailRequest) Validate() error {
	return validation.Validate(r)
}

// ChangePasswordRequest is the body of POST /auth/password/change.
// AccountID comes from the bearer token, never from the body.
type ChangePasswordRequest struct {
	AccountID       id.AccountID `json:"-"`
	CurrentPassword string       `json:"current_password" validate:"required,max=72"`
	NewPassword     string       `json:"new_password" validate:"required,max=72"`
}

func (r *ChangePasswordRequest) Normalize() {}

func (r *ChangePasswordRequest) Validate() error {
	return validation.Validate(r)
}
