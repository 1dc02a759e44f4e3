package account

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/auth/lockout"
	"bastion/internal/auth/models"
	"bastion/internal/sentinel"
	id "bastion/pkg/domain"
	"bastion/pkg/testutil"
)

// accountStore is the behaviour both implementations share.
type accountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error)
	RecordFailedAttempt(ctx context.Context, accountID id.AccountID, policy lockout.Policy, now time.Time) (lockout.Transition, error)
	RecordSuccess(ctx context.Context, accountID id.AccountID, now time.Time) error
	SetPassword(ctx context.Context, accountID id.AccountID, passwordHash string, now time.Time) error
	StoreResetToken(ctx context.Context, accountID id.AccountID, token models.ResetToken, now time.Time) error
	ClearResetToken(ctx context.Context, accountID id.AccountID, tokenHash string, now time.Time) error
	ConsumeResetToken(ctx context.Context, accountID id.AccountID, tokenHash, passwordHash string, now time.Time) (*models.Account, error)
	MarkVerified(ctx context.Context, accountID id.AccountID, tokenHash string, now time.Time) (*models.Account, error)
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int, error)
}

var (
	_ accountStore = (*InMemoryStore)(nil)
	_ accountStore = (*PostgresStore)(nil)
)

// storeSuite holds the behavioural tests; embedding suites supply the store.
type storeSuite struct {
	suite.Suite
	store accountStore
	now   time.Time
}

func (s *storeSuite) ctx() context.Context { return context.Background() }

func (s *storeSuite) create(email string) *models.Account {
	a := testutil.NewAccountBuilder().WithEmail(email).Build()
	a.CreatedAt, a.UpdatedAt = s.now, s.now
	s.Require().NoError(s.store.Create(s.ctx(), a))
	return a
}

func (s *storeSuite) TestCreateAndFind() {
	a := s.create("Jane.Doe@Example.com")

	byID, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Equal("jane.doe@example.com", byID.Email)
	s.Equal(models.RoleUser, byID.Role)
	s.Zero(byID.FailedLoginCount)
	s.Nil(byID.LockedUntil)
	s.Nil(byID.ResetToken)

	byEmail, err := s.store.FindByEmail(s.ctx(), "  JANE.DOE@example.COM")
	s.Require().NoError(err)
	s.Equal(a.ID, byEmail.ID)
}

func (s *storeSuite) TestCreateDuplicateEmail() {
	s.create("dup@example.com")
	other := testutil.NewAccountBuilder().WithEmail("DUP@example.com").Build()
	err := s.store.Create(s.ctx(), other)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *storeSuite) TestFindNotFound() {
	_, err := s.store.FindByID(s.ctx(), id.NewAccountID())
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByEmail(s.ctx(), "missing@example.com")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByResetTokenHash(s.ctx(), "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestRecordFailedAttemptLocksAtThreshold() {
	a := s.create("lock@example.com")
	policy := lockout.DefaultPolicy()

	for i := 1; i < policy.Threshold; i++ {
		tr, err := s.store.RecordFailedAttempt(s.ctx(), a.ID, policy, s.now)
		s.Require().NoError(err)
		s.False(tr.NewlyLocked)
		s.Equal(i, tr.State.FailedLoginCount)
	}
	tr, err := s.store.RecordFailedAttempt(s.ctx(), a.ID, policy, s.now)
	s.Require().NoError(err)
	s.True(tr.NewlyLocked)

	got, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Zero(got.FailedLoginCount)
	s.Require().NotNil(got.LockedUntil)
	s.WithinDuration(s.now.Add(policy.Duration), *got.LockedUntil, time.Millisecond)

	tr, err = s.store.RecordFailedAttempt(s.ctx(), a.ID, policy, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.True(tr.AlreadyLocked)
}

func (s *storeSuite) TestRecordFailedAttemptUnknownAccount() {
	_, err := s.store.RecordFailedAttempt(s.ctx(), id.NewAccountID(), lockout.DefaultPolicy(), s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestConcurrentFailuresMatchSequential() {
	policy := lockout.DefaultPolicy()

	few := s.create("few@example.com")
	res := testutil.RunConcurrent(3, func(int) error {
		_, err := s.store.RecordFailedAttempt(s.ctx(), few.ID, policy, s.now)
		return err
	})
	s.Equal(int32(3), res.Successes)
	got, err := s.store.FindByID(s.ctx(), few.ID)
	s.Require().NoError(err)
	s.Equal(3, got.FailedLoginCount)
	s.Nil(got.LockedUntil)

	many := s.create("many@example.com")
	var newlyLocked, alreadyLocked int
	results := make([]lockout.Transition, 12)
	res = testutil.RunConcurrent(12, func(i int) error {
		tr, err := s.store.RecordFailedAttempt(s.ctx(), many.ID, policy, s.now)
		results[i] = tr
		return err
	})
	s.Equal(int32(12), res.Successes)
	for _, tr := range results {
		if tr.NewlyLocked {
			newlyLocked++
		}
		if tr.AlreadyLocked {
			alreadyLocked++
		}
	}
	s.Equal(1, newlyLocked)
	s.Equal(12-policy.Threshold, alreadyLocked)

	got, err = s.store.FindByID(s.ctx(), many.ID)
	s.Require().NoError(err)
	s.Zero(got.FailedLoginCount)
	s.Require().NotNil(got.LockedUntil)
}

func (s *storeSuite) TestHighContentionFailuresAreAllCounted() {
	const attempts = 200
	policy := lockout.Policy{Threshold: 5, Duration: 15 * time.Minute}
	a := s.create("contended@example.com")

	results := make([]lockout.Transition, attempts)
	res := testutil.RunConcurrent(attempts, func(i int) error {
		tr, err := s.store.RecordFailedAttempt(s.ctx(), a.ID, policy, s.now)
		results[i] = tr
		return err
	})
	s.Equal(int32(attempts), res.Successes, "no failure may be dropped")

	var newlyLocked, alreadyLocked int
	for _, tr := range results {
		if tr.NewlyLocked {
			newlyLocked++
		}
		if tr.AlreadyLocked {
			alreadyLocked++
		}
	}
	s.Equal(1, newlyLocked)
	s.Equal(attempts-policy.Threshold, alreadyLocked)

	got, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Zero(got.FailedLoginCount)
	s.Require().NotNil(got.LockedUntil)
	s.WithinDuration(s.now.Add(policy.Duration), *got.LockedUntil, time.Millisecond)
}

func (s *storeSuite) TestRecordSuccessKeepsLiveLock() {
	policy := lockout.Policy{Threshold: 2, Duration: 15 * time.Minute}
	a := s.create("held@example.com")
	for range policy.Threshold {
		_, err := s.store.RecordFailedAttempt(s.ctx(), a.ID, policy, s.now)
		s.Require().NoError(err)
	}

	err := s.store.RecordSuccess(s.ctx(), a.ID, s.now.Add(time.Minute))
	s.ErrorIs(err, sentinel.ErrLocked)

	got, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.LockedUntil)
	s.WithinDuration(s.now.Add(policy.Duration), *got.LockedUntil, time.Millisecond)

	s.Require().NoError(s.store.RecordSuccess(s.ctx(), a.ID, s.now.Add(policy.Duration)))
	got, err = s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Nil(got.LockedUntil)
	s.Zero(got.FailedLoginCount)
}

func (s *storeSuite) TestRecordSuccessUnknownAccount() {
	s.ErrorIs(s.store.RecordSuccess(s.ctx(), id.NewAccountID(), s.now), sentinel.ErrNotFound)
}

func (s *storeSuite) TestRecordSuccessIsIdempotent() {
	a := s.create("ok@example.com")
	_, err := s.store.RecordFailedAttempt(s.ctx(), a.ID, lockout.DefaultPolicy(), s.now)
	s.Require().NoError(err)

	s.Require().NoError(s.store.RecordSuccess(s.ctx(), a.ID, s.now))
	s.Require().NoError(s.store.RecordSuccess(s.ctx(), a.ID, s.now))

	got, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Zero(got.FailedLoginCount)
	s.Nil(got.LockedUntil)
}

func (s *storeSuite) TestSetPasswordClearsTokenAndLockout() {
	a := s.create("setpw@example.com")
	s.Require().NoError(s.store.StoreResetToken(s.ctx(), a.ID, models.ResetToken{
		TokenHash: "h1", ExpiresAt: s.now.Add(time.Hour), Purpose: models.PurposePasswordReset,
	}, s.now))
	_, err := s.store.RecordFailedAttempt(s.ctx(), a.ID, lockout.DefaultPolicy(), s.now)
	s.Require().NoError(err)

	s.Require().NoError(s.store.SetPassword(s.ctx(), a.ID, "new-hash", s.now))

	got, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Equal("new-hash", got.PasswordHash)
	s.Nil(got.ResetToken)
	s.Zero(got.FailedLoginCount)
}

func (s *storeSuite) TestResetTokenLifecycle() {
	a := s.create("reset@example.com")
	token := models.ResetToken{TokenHash: "hash-1", ExpiresAt: s.now.Add(time.Hour), Purpose: models.PurposePasswordReset}
	s.Require().NoError(s.store.StoreResetToken(s.ctx(), a.ID, token, s.now))

	found, err := s.store.FindByResetTokenHash(s.ctx(), "hash-1")
	s.Require().NoError(err)
	s.Equal(a.ID, found.ID)
	s.Require().NotNil(found.ResetToken)
	s.Equal(models.PurposePasswordReset, found.ResetToken.Purpose)

	// overwrite
	s.Require().NoError(s.store.StoreResetToken(s.ctx(), a.ID, models.ResetToken{
		TokenHash: "hash-2", ExpiresAt: s.now.Add(time.Hour), Purpose: models.PurposePasswordReset,
	}, s.now))
	_, err = s.store.FindByResetTokenHash(s.ctx(), "hash-1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.store.ClearResetToken(s.ctx(), a.ID, "hash-1", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound, "clearing a superseded hash must not touch the live token")
	s.Require().NoError(s.store.ClearResetToken(s.ctx(), a.ID, "hash-2", s.now))

	got, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Nil(got.ResetToken)
}

func (s *storeSuite) TestConsumeResetTokenIsSingleUse() {
	a := s.create("consume@example.com")
	for range 4 {
		_, err := s.store.RecordFailedAttempt(s.ctx(), a.ID, lockout.DefaultPolicy(), s.now)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.store.StoreResetToken(s.ctx(), a.ID, models.ResetToken{
		TokenHash: "once", ExpiresAt: s.now.Add(time.Hour), Purpose: models.PurposePasswordReset,
	}, s.now))

	res := testutil.RunConcurrent(8, func(int) error {
		_, err := s.store.ConsumeResetToken(s.ctx(), a.ID, "once", "new-hash", s.now)
		return err
	})
	s.Equal(int32(1), res.Successes)
	s.Equal(int32(7), res.NotFounds)

	got, err := s.store.FindByID(s.ctx(), a.ID)
	s.Require().NoError(err)
	s.Equal("new-hash", got.PasswordHash)
	s.Nil(got.ResetToken)
	s.Zero(got.FailedLoginCount)
	s.Nil(got.LockedUntil)
}

func (s *storeSuite) TestConsumeResetTokenRejectsExpiredAndWrongPurpose() {
	a := s.create("reject@example.com")
	s.Require().NoError(s.store.StoreResetToken(s.ctx(), a.ID, models.ResetToken{
		TokenHash: "exp", ExpiresAt: s.now, Purpose: models.PurposePasswordReset,
	}, s.now))
	_, err := s.store.ConsumeResetToken(s.ctx(), a.ID, "exp", "x", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.StoreResetToken(s.ctx(), a.ID, models.ResetToken{
		TokenHash: "verify", ExpiresAt: s.now.Add(time.Hour), Purpose: models.PurposeEmailVerification,
	}, s.now))
	_, err = s.store.ConsumeResetToken(s.ctx(), a.ID, "verify", "x", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	verified, err := s.store.MarkVerified(s.ctx(), a.ID, "verify", s.now)
	s.Require().NoError(err)
	s.True(verified.Verified)
	s.Nil(verified.ResetToken)

	_, err = s.store.MarkVerified(s.ctx(), a.ID, "verify", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestDeleteExpiredResetTokens() {
	live := s.create("live@example.com")
	stale := s.create("stale@example.com")
	s.Require().NoError(s.store.StoreResetToken(s.ctx(), live.ID, models.ResetToken{
		TokenHash: "live", ExpiresAt: s.now.Add(time.Hour), Purpose: models.PurposePasswordReset,
	}, s.now))
	s.Require().NoError(s.store.StoreResetToken(s.ctx(), stale.ID, models.ResetToken{
		TokenHash: "stale", ExpiresAt: s.now.Add(-time.Second), Purpose: models.PurposePasswordReset,
	}, s.now))

	n, err := s.store.DeleteExpiredResetTokens(s.ctx(), s.now)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.FindByResetTokenHash(s.ctx(), "live")
	s.NoError(err)
	_, err = s.store.FindByResetTokenHash(s.ctx(), "stale")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
