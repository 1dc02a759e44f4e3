package bucket

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"bastion/internal/ratelimit/models"
	"bastion/pkg/platform/middleware/requesttime"
	"bastion/pkg/testutil"
)

type store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error)
	Reset(ctx context.Context, key string) error
}

// storeSuite holds the behaviour every backend shares. Backend suites embed it
// and set store in SetupTest.
type storeSuite struct {
	suite.Suite
	store store
	now   time.Time
}

func (s *storeSuite) at(offset time.Duration) context.Context {
	return requesttime.WithTime(context.Background(), s.now.Add(offset))
}

func (s *storeSuite) TestAllowUpToLimit() {
	limit := models.Limit{Requests: 3, Window: time.Minute}

	for i := range 3 {
		res, err := s.store.Allow(s.at(time.Duration(i)*time.Second), "k", limit)
		s.Require().NoError(err)
		s.True(res.Allowed, "hit %d", i+1)
		s.Equal(3, res.Limit)
		s.Equal(2-i, res.Remaining)
	}

	res, err := s.store.Allow(s.at(3*time.Second), "k", limit)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Zero(res.Remaining)
	s.WithinDuration(s.now.Add(time.Minute), res.ResetAt, time.Millisecond)
	s.Equal(57, res.RetryAfter)
}

func (s *storeSuite) TestWindowSlides() {
	limit := models.Limit{Requests: 2, Window: time.Minute}

	_, err := s.store.Allow(s.at(0), "k", limit)
	s.Require().NoError(err)
	_, err = s.store.Allow(s.at(30*time.Second), "k", limit)
	s.Require().NoError(err)

	res, err := s.store.Allow(s.at(59*time.Second), "k", limit)
	s.Require().NoError(err)
	s.False(res.Allowed)

	// The first hit has left the window; the second has not.
	res, err = s.store.Allow(s.at(61*time.Second), "k", limit)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Zero(res.Remaining)

	res, err = s.store.Allow(s.at(62*time.Second), "k", limit)
	s.Require().NoError(err)
	s.False(res.Allowed)
}

func (s *storeSuite) TestRejectedHitsDoNotExtendTheWindow() {
	limit := models.Limit{Requests: 1, Window: time.Minute}

	_, err := s.store.Allow(s.at(0), "k", limit)
	s.Require().NoError(err)
	for i := 1; i <= 5; i++ {
		res, err := s.store.Allow(s.at(time.Duration(i)*10*time.Second), "k", limit)
		s.Require().NoError(err)
		s.False(res.Allowed)
	}

	res, err := s.store.Allow(s.at(61*time.Second), "k", limit)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *storeSuite) TestKeysAreIndependent() {
	limit := models.Limit{Requests: 1, Window: time.Minute}

	a, err := s.store.Allow(s.at(0), "a", limit)
	s.Require().NoError(err)
	b, err := s.store.Allow(s.at(0), "b", limit)
	s.Require().NoError(err)

	s.True(a.Allowed)
	s.True(b.Allowed)
}

func (s *storeSuite) TestReset() {
	limit := models.Limit{Requests: 1, Window: time.Minute}

	_, err := s.store.Allow(s.at(0), "k", limit)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(context.Background(), "k"))

	res, err := s.store.Allow(s.at(time.Second), "k", limit)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *storeSuite) TestRejectsInvalidInput() {
	_, err := s.store.Allow(s.at(0), "", models.Limit{Requests: 1, Window: time.Minute})
	s.Error(err)
	_, err = s.store.Allow(s.at(0), "k", models.Limit{Requests: 0, Window: time.Minute})
	s.Error(err)
}

func (s *storeSuite) TestConcurrentHitsNeverExceedLimit() {
	limit := models.Limit{Requests: 10, Window: time.Minute}
	var allowed atomic.Int32

	_, errs := testutil.RunConcurrentCollect(40, func(i int) error {
		res, err := s.store.Allow(s.at(time.Duration(i)*time.Millisecond), "hot", limit)
		if err != nil {
			return fmt.Errorf("hit %d: %w", i, err)
		}
		if res.Allowed {
			allowed.Add(1)
		}
		return nil
	})

	s.Require().Empty(errs)
	s.LessOrEqual(int(allowed.Load()), 10)
	s.GreaterOrEqual(int(allowed.Load()), 1)
}
