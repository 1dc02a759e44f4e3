package account

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"bastion/internal/auth/lockout"
	"bastion/internal/auth/models"
	"bastion/internal/sentinel"
	id "bastion/pkg/domain"
)

// Error contract shared by both stores:
//   - sentinel.ErrNotFound when the account (or the expected token) is absent
//   - sentinel.ErrAlreadyUsed when an email is taken
//   - wrapped infrastructure errors otherwise
//
// Returned accounts are copies; mutating them does not touch the store.

// InMemoryStore keeps accounts in a map guarded by one RWMutex. Every mutation
// runs under the write lock, which makes read-modify-write atomic.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.Account
	byEmail  map[string]id.AccountID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[id.AccountID]*models.Account),
		byEmail:  make(map[string]id.AccountID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, account *models.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	email := models.NormalizeEmail(account.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyUsed)
	}
	if _, taken := s.accounts[account.ID]; taken {
		return fmt.Errorf("account id already exists: %w", sentinel.ErrAlreadyUsed)
	}
	stored := clone(account)
	stored.Email = email
	s.accounts[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[accountID]; ok {
		return clone(a), nil
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if accountID, ok := s.byEmail[models.NormalizeEmail(email)]; ok {
		return clone(s.accounts[accountID]), nil
	}
	return nil, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
}

// FindByResetTokenHash scans every account and compares in constant time.
func (s *InMemoryStore) FindByResetTokenHash(_ context.Context, tokenHash string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Account
	for _, a := range s.accounts {
		if a.ResetToken != nil && subtle.ConstantTimeCompare([]byte(a.ResetToken.TokenHash), []byte(tokenHash)) == 1 {
			found = a
		}
	}
	if found == nil {
		return nil, fmt.Errorf("reset token not found: %w", sentinel.ErrNotFound)
	}
	return clone(found), nil
}

func (s *InMemoryStore) RecordFailedAttempt(_ context.Context, accountID id.AccountID, policy lockout.Policy, now time.Time) (lockout.Transition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return lockout.Transition{}, fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	tr := policy.RecordFailure(a.LockState(), now)
	if !tr.AlreadyLocked {
		a.ApplyLockState(tr.State)
		touch(a, now)
	}
	return tr, nil
}

// RecordSuccess clears the counter unless a lock is still live at now.
func (s *InMemoryStore) RecordSuccess(_ context.Context, accountID id.AccountID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if a.LockedUntil != nil && a.LockedUntil.After(now) {
		return fmt.Errorf("record login success: %w", sentinel.ErrLocked)
	}
	a.ClearLockout()
	touch(a, now)
	return nil
}

func (s *InMemoryStore) SetPassword(_ context.Context, accountID id.AccountID, passwordHash string, now time.Time) error {
	return s.update(accountID, now, func(a *models.Account) bool {
		a.PasswordHash = passwordHash
		a.ResetToken = nil
		a.ClearLockout()
		return true
	})
}

func (s *InMemoryStore) StoreResetToken(_ context.Context, accountID id.AccountID, token models.ResetToken, now time.Time) error {
	return s.update(accountID, now, func(a *models.Account) bool {
		t := token
		a.ResetToken = &t
		return true
	})
}

func (s *InMemoryStore) ClearResetToken(_ context.Context, accountID id.AccountID, tokenHash string, now time.Time) error {
	return s.update(accountID, now, func(a *models.Account) bool {
		if !tokenMatches(a, tokenHash) {
			return false
		}
		a.ResetToken = nil
		return true
	})
}

func (s *InMemoryStore) ConsumeResetToken(_ context.Context, accountID id.AccountID, tokenHash, passwordHash string, now time.Time) (*models.Account, error) {
	var out *models.Account
	err := s.update(accountID, now, func(a *models.Account) bool {
		if !liveToken(a, tokenHash, models.PurposePasswordReset, now) {
			return false
		}
		a.PasswordHash = passwordHash
		a.ResetToken = nil
		a.ClearLockout()
		out = a
		return true
	})
	if err != nil {
		return nil, err
	}
	return clone(out), nil
}

func (s *InMemoryStore) MarkVerified(_ context.Context, accountID id.AccountID, tokenHash string, now time.Time) (*models.Account, error) {
	var out *models.Account
	err := s.update(accountID, now, func(a *models.Account) bool {
		if !liveToken(a, tokenHash, models.PurposeEmailVerification, now) {
			return false
		}
		a.Verified = true
		a.ResetToken = nil
		out = a
		return true
	})
	if err != nil {
		return nil, err
	}
	return clone(out), nil
}

func (s *InMemoryStore) DeleteExpiredResetTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.accounts {
		if a.ResetToken != nil && a.ResetToken.IsExpired(now) {
			a.ResetToken = nil
			touch(a, now)
			n++
		}
	}
	return n, nil
}

// update applies fn under the write lock. fn returning false means its
// precondition failed and the call reports ErrNotFound without writing.
func (s *InMemoryStore) update(accountID id.AccountID, now time.Time, fn func(a *models.Account) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account not found: %w", sentinel.ErrNotFound)
	}
	if !fn(a) {
		return fmt.Errorf("token not found: %w", sentinel.ErrNotFound)
	}
	touch(a, now)
	return nil
}

func touch(a *models.Account, now time.Time) {
	a.UpdatedAt = now
	a.Version++
}

func tokenMatches(a *models.Account, tokenHash string) bool {
	return a.ResetToken != nil &&
		subtle.ConstantTimeCompare([]byte(a.ResetToken.TokenHash), []byte(tokenHash)) == 1
}

func liveToken(a *models.Account, tokenHash string, purpose models.TokenPurpose, now time.Time) bool {
	return tokenMatches(a, tokenHash) && a.ResetToken.Purpose == purpose && !a.ResetToken.IsExpired(now)
}

func clone(a *models.Account) *models.Account {
	c := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		c.LockedUntil = &t
	}
	if a.ResetToken != nil {
		t := *a.ResetToken
		c.ResetToken = &t
	}
	return &c
}
