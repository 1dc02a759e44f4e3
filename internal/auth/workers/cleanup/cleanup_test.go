package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bastion/internal/auth/metrics"
	"bastion/internal/auth/models"
	"bastion/internal/auth/store/account"
	bastiontest "bastion/pkg/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type failingStore struct{}

func (failingStore) DeleteExpiredResetTokens(context.Context, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestCleanupService_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	store := account.NewInMemory()

	expired := bastiontest.NewAccountBuilder().
		WithEmail("expired@example.com").
		WithResetToken("hash-expired", models.PurposePasswordReset, now.Add(-time.Minute)).
		Build()
	live := bastiontest.NewAccountBuilder().
		WithEmail("live@example.com").
		WithResetToken("hash-live", models.PurposeEmailVerification, now.Add(time.Hour)).
		Build()
	require.NoError(t, store.Create(ctx, expired))
	require.NoError(t, store.Create(ctx, live))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc, err := New(store, WithCleanupMetrics(m), WithCleanupClock(func() time.Time { return now }))
	require.NoError(t, err)

	res, err := svc.RunOnce(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedResetTokens)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResetTokensCleanedUp))

	got, err := store.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ResetToken)
	got, err = store.FindByID(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResetToken)
	assert.Equal(t, "hash-live", got.ResetToken.TokenHash)
}

func TestCleanupService_RunOnce_Error(t *testing.T) {
	svc, err := New(failingStore{})
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background())

	require.Error(t, err)
}

func TestCleanupService_StartStopsOnCancel(t *testing.T) {
	svc, err := New(account.NewInMemory(), WithCleanupInterval(5*time.Millisecond))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}
