package resettoken

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"bastion/internal/auth/lockout"
	"bastion/internal/auth/models"
	"bastion/internal/auth/password"
	"bastion/internal/auth/store/account"
	dErrors "bastion/pkg/domain-errors"
	"bastion/pkg/platform/middleware/requesttime"
	"bastion/pkg/testutil"
)

type sentMessage struct {
	kind  string
	email string
	token string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendPasswordResetMessage(_ context.Context, email, rawToken string) error {
	return f.record("reset", email, rawToken)
}

func (f *fakeSender) SendVerificationMessage(_ context.Context, email, rawToken string) error {
	return f.record("verify", email, rawToken)
}

func (f *fakeSender) record(kind, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{kind, email, token})
	return nil
}

func (f *fakeSender) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type ManagerSuite struct {
	suite.Suite
	store   *account.InMemoryStore
	sender  *fakeSender
	hasher  *password.Hasher
	manager *Manager
	now     time.Time
	account *models.Account
}

func (s *ManagerSuite) SetupTest() {
	s.store = account.NewInMemory()
	s.sender = &fakeSender{}
	s.hasher = password.NewHasher(bcrypt.MinCost)
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	var err error
	s.manager, err = New(s.store, s.sender, s.hasher)
	s.Require().NoError(err)

	s.account = testutil.NewAccountBuilder().WithEmail("jane@example.com").Build()
	s.Require().NoError(s.store.Create(context.Background(), s.account))
}

func (s *ManagerSuite) at(d time.Duration) context.Context {
	return requesttime.WithTime(context.Background(), s.now.Add(d))
}

func (s *ManagerSuite) requestReset() string {
	s.Require().NoError(s.manager.RequestReset(s.at(0), "jane@example.com"))
	return s.sender.last().token
}

func (s *ManagerSuite) TestRequestReset_StoresOnlyTheHash() {
	raw := s.requestReset()

	msg := s.sender.last()
	s.Equal("reset", msg.kind)
	s.Equal("jane@example.com", msg.email)

	stored, err := s.store.FindByID(context.Background(), s.account.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.ResetToken)
	s.Equal(Hash(raw), stored.ResetToken.TokenHash)
	s.NotEqual(raw, stored.ResetToken.TokenHash)
	s.Equal(s.now.Add(time.Hour), stored.ResetToken.ExpiresAt)
	s.Equal(models.PurposePasswordReset, stored.ResetToken.Purpose)
}

func (s *ManagerSuite) TestRequestReset_UnknownEmailIsSilent() {
	s.NoError(s.manager.RequestReset(s.at(0), "ghost@example.com"))
	s.Empty(s.sender.sent)
}

func (s *ManagerSuite) TestRequestReset_SendFailureKeepsToken() {
	s.sender.err = errors.New("smtp down")
	err := s.manager.RequestReset(s.at(0), "jane@example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeFailedToSendEmail))

	stored, err := s.store.FindByID(context.Background(), s.account.ID)
	s.Require().NoError(err)
	s.NotNil(stored.ResetToken)
}

func (s *ManagerSuite) TestRequestReset_OverwritesPriorToken() {
	first := s.requestReset()
	second := s.requestReset()
	s.NotEqual(first, second)

	_, err := s.manager.ConsumeReset(s.at(time.Minute), first, "NewPassw0rd")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
	_, err = s.manager.ConsumeReset(s.at(time.Minute), second, "NewPassw0rd")
	s.NoError(err)
}

func (s *ManagerSuite) TestConsumeReset_Success() {
	raw := s.requestReset()

	updated, err := s.manager.ConsumeReset(s.at(30*time.Minute), raw, "NewPassw0rd")
	s.Require().NoError(err)
	s.Nil(updated.ResetToken)

	ok, err := s.hasher.Compare(updated.PasswordHash, "NewPassw0rd")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ManagerSuite) TestConsumeReset_SingleUse() {
	raw := s.requestReset()
	_, err := s.manager.ConsumeReset(s.at(time.Minute), raw, "NewPassw0rd")
	s.Require().NoError(err)

	_, err = s.manager.ConsumeReset(s.at(2*time.Minute), raw, "OtherPassw0rd")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func (s *ManagerSuite) TestConsumeReset_ConcurrentRedemptionOnlyOnce() {
	raw := s.requestReset()
	successes, errs := testutil.RunConcurrentCollect(6, func(int) error {
		_, err := s.manager.ConsumeReset(s.at(time.Minute), raw, "NewPassw0rd")
		return err
	})
	s.Equal(int32(1), successes)
	for _, err := range errs {
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken), err)
	}
}

func (s *ManagerSuite) TestConsumeReset_ExpiredClearsToken() {
	raw := s.requestReset()

	_, err := s.manager.ConsumeReset(s.at(time.Hour), raw, "NewPassw0rd")
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))

	stored, err := s.store.FindByID(context.Background(), s.account.ID)
	s.Require().NoError(err)
	s.Nil(stored.ResetToken)

	_, err = s.manager.ConsumeReset(s.at(time.Hour), raw, "NewPassw0rd")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func (s *ManagerSuite) TestConsumeReset_ErrorPriority() {
	// expired beats wrong purpose and weak password
	s.Require().NoError(s.manager.RequestVerification(s.at(0), s.account.ID))
	verifyRaw := s.sender.last().token
	_, err := s.manager.ConsumeReset(s.at(2*time.Hour), verifyRaw, "weak")
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))

	// wrong purpose beats weak password
	s.Require().NoError(s.manager.RequestVerification(s.at(0), s.account.ID))
	verifyRaw = s.sender.last().token
	_, err = s.manager.ConsumeReset(s.at(time.Minute), verifyRaw, "weak")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTokenType))

	raw := s.requestReset()
	_, err = s.manager.ConsumeReset(s.at(time.Minute), raw, "weak")
	s.True(dErrors.HasCode(err, dErrors.CodeWeakPassword))

	_, err = s.manager.ConsumeReset(s.at(time.Minute), "not-a-token", "weak")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func (s *ManagerSuite) TestConsumeReset_ClearsLockout() {
	for range 4 {
		_, err := s.store.RecordFailedAttempt(context.Background(), s.account.ID, lockout.DefaultPolicy(), s.now)
		s.Require().NoError(err)
	}
	raw := s.requestReset()

	updated, err := s.manager.ConsumeReset(s.at(time.Minute), raw, "NewPassw0rd")
	s.Require().NoError(err)
	s.Zero(updated.FailedLoginCount)
	s.Nil(updated.LockedUntil)
}

func (s *ManagerSuite) TestVerification() {
	s.Require().NoError(s.manager.RequestVerification(s.at(0), s.account.ID))
	msg := s.sender.last()
	s.Equal("verify", msg.kind)

	updated, err := s.manager.ConsumeVerification(s.at(time.Minute), msg.token)
	s.Require().NoError(err)
	s.True(updated.Verified)

	// already verified: nothing sent
	sent := len(s.sender.sent)
	s.Require().NoError(s.manager.RequestVerification(s.at(0), s.account.ID))
	s.Len(s.sender.sent, sent)
}

func (s *ManagerSuite) TestVerification_RejectsResetToken() {
	raw := s.requestReset()
	_, err := s.manager.ConsumeVerification(s.at(time.Minute), raw)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTokenType))
}

func (s *ManagerSuite) TestRequestVerification_UnknownAccount() {
	err := s.manager.RequestVerification(s.at(0), testutil.TestIDs.AccountID2)
	s.True(dErrors.HasCode(err, dErrors.CodeUserNotFound))
}

func (s *ManagerSuite) TestWithTTL() {
	m, err := New(s.store, s.sender, s.hasher, WithTTL(5*time.Minute))
	s.Require().NoError(err)
	s.Require().NoError(m.RequestReset(s.at(0), "jane@example.com"))
	_, err = m.ConsumeReset(s.at(5*time.Minute), s.sender.last().token, "NewPassw0rd")
	s.True(dErrors.HasCode(err, dErrors.CodeTokenExpired))
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, &fakeSender{}, password.NewHasher(bcrypt.MinCost))
	if err == nil {
		t.Fatal("expected error for nil store")
	}
}
