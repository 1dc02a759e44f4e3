package models

import (
	"strings"
	"time"

	"bastion/internal/auth/lockout"
	id "bastion/pkg/domain"
)

// Account is the credential record owned by the account store.
// PasswordHash and ResetToken never leave the service; use AccountView for JSON.
type Account struct {
	ID           id.AccountID
	Email        string
	PasswordHash string

	FailedLoginCount int
	LockedUntil      *time.Time
	ResetToken       *ResetToken

	Role     Role
	Verified bool
	Profile  Profile

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version increments on every write.
	Version int64
}

// ResetToken is the stored half of an emailed one-time token.
type ResetToken struct {
	TokenHash string
	ExpiresAt time.Time
	Purpose   TokenPurpose
}

// IsExpired reports whether the token is unusable at now. The expiry instant itself is expired.
func (t *ResetToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Profile carries optional fields passed through from signup.
type Profile struct {
	Name     string
	Phone    string
	Location string
}

// NewAccount builds a fresh account: zero counters, no lock, no token.
func NewAccount(accountID id.AccountID, email, passwordHash string, role Role, profile Profile, now time.Time) *Account {
	return &Account{
		ID:           accountID,
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         role,
		Profile:      profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LockState projects the lockout-relevant fields.
func (a *Account) LockState() lockout.State {
	return lockout.State{FailedLoginCount: a.FailedLoginCount, LockedUntil: a.LockedUntil}
}

// ApplyLockState writes a lockout result back onto the account.
func (a *Account) ApplyLockState(s lockout.State) {
	a.FailedLoginCount = s.FailedLoginCount
	a.LockedUntil = s.LockedUntil
}

// ClearLockout resets the failure counter and any lock.
func (a *Account) ClearLockout() {
	a.FailedLoginCount = 0
	a.LockedUntil = nil
}
