package testutil

import (
	"time"

	"github.com/google/uuid"

	"bastion/internal/auth/models"
	id "bastion/pkg/domain"
)

// TestIDs provides deterministic account IDs for tests.
var TestIDs = struct {
	AccountID1 id.AccountID
	AccountID2 id.AccountID
}{
	AccountID1: id.AccountID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	AccountID2: id.AccountID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
}

// AccountBuilder provides a fluent interface for building test accounts.
type AccountBuilder struct {
	account *models.Account
}

// NewAccountBuilder creates a builder for an unlocked, unverified user account.
func NewAccountBuilder() *AccountBuilder {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return &AccountBuilder{
		account: &models.Account{
			ID:           id.AccountID(uuid.New()),
			Email:        "test@example.com",
			PasswordHash: "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold",
			Role:         models.RoleUser,
			Profile:      models.Profile{Name: "Test User"},
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}
}

func (b *AccountBuilder) WithID(accountID id.AccountID) *AccountBuilder {
	b.account.ID = accountID
	return b
}

func (b *AccountBuilder) WithEmail(email string) *AccountBuilder {
	b.account.Email = models.NormalizeEmail(email)
	return b
}

func (b *AccountBuilder) WithPasswordHash(hash string) *AccountBuilder {
	b.account.PasswordHash = hash
	return b
}

func (b *AccountBuilder) WithRole(role models.Role) *AccountBuilder {
	b.account.Role = role
	return b
}

func (b *AccountBuilder) Verified() *AccountBuilder {
	b.account.Verified = true
	return b
}

func (b *AccountBuilder) WithFailedLogins(n int) *AccountBuilder {
	b.account.FailedLoginCount = n
	return b
}

func (b *AccountBuilder) LockedUntil(t time.Time) *AccountBuilder {
	b.account.LockedUntil = &t
	b.account.FailedLoginCount = 0
	return b
}

func (b *AccountBuilder) WithResetToken(hash string, purpose models.TokenPurpose, expiresAt time.Time) *AccountBuilder {
	b.account.ResetToken = &models.ResetToken{TokenHash: hash, Purpose: purpose, ExpiresAt: expiresAt}
	return b
}

func (b *AccountBuilder) Build() *models.Account {
	return b.account
}
