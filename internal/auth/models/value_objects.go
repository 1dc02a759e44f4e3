package models

import dErrors "bastion/pkg/domain-errors"

// Role is the closed set of account roles.
type Role string

const (
	RoleUser     Role = "user"
	RoleEmployer Role = "employer"
	RoleAdmin    Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleEmployer || r == RoleAdmin
}

func (r Role) String() string {
	return string(r)
}

// ParseRole parses a stored role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid role")
	}
	return r, nil
}

// SignupRole resolves the role requested at signup. Empty means user;
// admin cannot be self-assigned.
func SignupRole(requested string) (Role, error) {
	switch Role(requested) {
	case "":
		return RoleUser, nil
	case RoleUser, RoleEmployer:
		return Role(requested), nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "role must be one of [user employer]")
	}
}

// TokenPurpose scopes a one-time token to the flow that issued it.
type TokenPurpose string

const (
	PurposePasswordReset     TokenPurpose = "password-reset"
	PurposeEmailVerification TokenPurpose = "email-verification"
)

func (p TokenPurpose) IsValid() bool {
	return p == PurposePasswordReset || p == PurposeEmailVerification
}

func (p TokenPurpose) String() string {
	return string(p)
}
