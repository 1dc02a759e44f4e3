package models

import "time"

// AccountView is the public projection of an Account.
type AccountView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Verified  bool      `json:"verified"`
	Name      string    `json:"name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAccountView strips credentials and lockout state.
func NewAccountView(a *Account) AccountView {
	return AccountView{
		ID:        a.ID.String(),
		Email:     a.Email,
		Role:      a.Role,
		Verified:  a.Verified,
		Name:      a.Profile.Name,
		Phone:     a.Profile.Phone,
		Location:  a.Profile.Location,
		CreatedAt: a.CreatedAt,
	}
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      AccountView `json:"user"`
}

// SuccessResult is the body of flows that only acknowledge.
type SuccessResult struct {
	Success bool `json:"success"`
}
