// Package resettoken issues and redeems the one-time tokens behind password
// reset and email verification.
//
// Only the SHA-256 of a token is stored. Redeeming checks, in order: the token
// exists, it has not expired (an expired token is cleared), it was issued for
// this flow, and for resets the new password is strong. The store then clears
// the token in the same conditional write that applies the change, so a token
// can be redeemed once.
package resettoken

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bastion/internal/auth/models"
	"bastion/internal/auth/password"
	"bastion/internal/sentinel"
	id "bastion/pkg/domain"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/middleware/requesttime"
)

// DefaultTTL is how long an emailed token stays valid.
const DefaultTTL = time.Hour

// Store is the persistence the manager needs.
type Store interface {
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error)
	StoreResetToken(ctx context.Context, accountID id.AccountID, token models.ResetToken, now time.Time) error
	ClearResetToken(ctx context.Context, accountID id.AccountID, tokenHash string, now time.Time) error
	ConsumeResetToken(ctx context.Context, accountID id.AccountID, tokenHash, passwordHash string, now time.Time) (*models.Account, error)
	MarkVerified(ctx context.Context, accountID id.AccountID, tokenHash string, now time.Time) (*models.Account, error)
}

// Sender delivers raw tokens to the account's address.
type Sender interface {
	SendPasswordResetMessage(ctx context.Context, email, rawToken string) error
	SendVerificationMessage(ctx context.Context, email, rawToken string) error
}

// Hasher produces password hashes for the reset flow.
type Hasher interface {
	Hash(password string) (string, error)
}

// Manager runs the token lifecycle.
type Manager struct {
	store  Store
	sender Sender
	hasher Hasher
	policy password.Policy
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithPasswordPolicy(p password.Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func New(store Store, sender Sender, hasher Hasher, opts ...Option) (*Manager, error) {
	if store == nil || sender == nil || hasher == nil {
		return nil, errors.New("store, sender and hasher are required")
	}
	m := &Manager{
		store:  store,
		sender: sender,
		hasher: hasher,
		policy: password.DefaultPolicy(),
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RequestReset issues a password-reset token for email and hands it to the
// sender. Unknown emails return nil so callers cannot probe for accounts.
// A delivery failure returns FailedToSendEmail and leaves the token stored.
func (m *Manager) RequestReset(ctx context.Context, email string) error {
	account, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			m.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}

	raw, err := m.issue(ctx, account.ID, models.PurposePasswordReset)
	if err != nil {
		return err
	}
	if err := m.sender.SendPasswordResetMessage(ctx, account.Email, raw); err != nil {
		return dErrors.Wrap(err, dErrors.CodeFailedToSendEmail, "failed to send password reset email")
	}
	return nil
}

// ConsumeReset redeems a password-reset token and sets newPassword.
// It returns the updated account; the lockout is cleared as part of the write.
func (m *Manager) ConsumeReset(ctx context.Context, raw, newPassword string) (*models.Account, error) {
	account, tokenHash, err := m.redeemable(ctx, raw, models.PurposePasswordReset)
	if err != nil {
		return nil, err
	}
	if !m.policy.IsStrong(newPassword) {
		return nil, dErrors.New(dErrors.CodeWeakPassword, "password does not meet strength requirements")
	}
	passwordHash, err := m.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	updated, err := m.store.ConsumeResetToken(ctx, account.ID, tokenHash, passwordHash, requesttime.Now(ctx))
	if err != nil {
		return nil, m.lostRace(ctx, account.ID, err)
	}
	return updated, nil
}

// RequestVerification issues an email-verification token for an account.
// Already verified accounts are a no-op.
func (m *Manager) RequestVerification(ctx context.Context, accountID id.AccountID) error {
	account, err := m.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUserNotFound, "account not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up account")
	}
	if account.Verified {
		return nil
	}

	raw, err := m.issue(ctx, account.ID, models.PurposeEmailVerification)
	if err != nil {
		return err
	}
	if err := m.sender.SendVerificationMessage(ctx, account.Email, raw); err != nil {
		return dErrors.Wrap(err, dErrors.CodeFailedToSendEmail, "failed to send verification email")
	}
	return nil
}

// ConsumeVerification redeems an email-verification token.
func (m *Manager) ConsumeVerification(ctx context.Context, raw string) (*models.Account, error) {
	account, tokenHash, err := m.redeemable(ctx, raw, models.PurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	updated, err := m.store.MarkVerified(ctx, account.ID, tokenHash, requesttime.Now(ctx))
	if err != nil {
		return nil, m.lostRace(ctx, account.ID, err)
	}
	return updated, nil
}

// issue stores a fresh token, replacing any previous one, and returns the raw value.
func (m *Manager) issue(ctx context.Context, accountID id.AccountID, purpose models.TokenPurpose) (string, error) {
	raw, hash, err := Generate()
	if err != nil {
		return "", err
	}
	now := requesttime.Now(ctx)
	token := models.ResetToken{TokenHash: hash, ExpiresAt: now.Add(m.ttl), Purpose: purpose}
	if err := m.store.StoreResetToken(ctx, accountID, token, now); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store token")
	}
	return raw, nil
}

// redeemable applies the InvalidToken, TokenExpired, InvalidTokenType checks in that order.
func (m *Manager) redeemable(ctx context.Context, raw string, purpose models.TokenPurpose) (*models.Account, string, error) {
	tokenHash := Hash(raw)
	account, err := m.store.FindByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, "", dErrors.New(dErrors.CodeInvalidToken, "invalid or unknown token")
		}
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up token")
	}
	if account.ResetToken == nil || !Verify(raw, account.ResetToken.TokenHash) {
		return nil, "", dErrors.New(dErrors.CodeInvalidToken, "invalid or unknown token")
	}

	now := requesttime.Now(ctx)
	if account.ResetToken.IsExpired(now) {
		if err := m.store.ClearResetToken(ctx, account.ID, tokenHash, now); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			m.logger.WarnContext(ctx, "failed to clear expired token", "error", err)
		}
		return nil, "", dErrors.New(dErrors.CodeTokenExpired, "token has expired")
	}
	if account.ResetToken.Purpose != purpose {
		return nil, "", dErrors.New(dErrors.CodeInvalidTokenType, "token was issued for a different purpose")
	}
	return account, tokenHash, nil
}

// lostRace classifies a failed conditional write: the account vanished, or
// another request redeemed the token first.
func (m *Manager) lostRace(ctx context.Context, accountID id.AccountID, err error) error {
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem token")
	}
	if _, findErr := m.store.FindByID(ctx, accountID); errors.Is(findErr, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeUserNotFound, "account not found")
	}
	return dErrors.New(dErrors.CodeInvalidToken, "invalid or unknown token")
}
