package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreaker(t *testing.T) {
	newBreaker := func() (*Breaker, *fakeClock) {
		clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		return New("captcha",
			WithFailureThreshold(3),
			WithSuccessThreshold(2),
			WithCooldown(10*time.Second),
			WithClock(clock.Now),
		), clock
	}

	t.Run("opens after consecutive failures", func(t *testing.T) {
		b, _ := newBreaker()
		assert.Equal(t, StateChange{}, b.RecordFailure())
		assert.Equal(t, StateChange{}, b.RecordFailure())
		assert.True(t, b.RecordFailure().Opened)
		assert.False(t, b.Allow())
		assert.Equal(t, "open", b.State().String())
	})

	t.Run("success resets the failure streak", func(t *testing.T) {
		b, _ := newBreaker()
		b.RecordFailure()
		b.RecordFailure()
		b.RecordSuccess()
		b.RecordFailure()
		assert.True(t, b.Allow())
	})

	t.Run("half-open after cooldown then closes on successes", func(t *testing.T) {
		b, clock := newBreaker()
		for range 3 {
			b.RecordFailure()
		}
		clock.Advance(9 * time.Second)
		assert.False(t, b.Allow())

		clock.Advance(time.Second)
		assert.True(t, b.Allow())
		assert.Equal(t, StateHalfOpen, b.State())

		assert.False(t, b.RecordSuccess().Closed)
		assert.True(t, b.RecordSuccess().Closed)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("failure while half-open reopens", func(t *testing.T) {
		b, clock := newBreaker()
		for range 3 {
			b.RecordFailure()
		}
		clock.Advance(10 * time.Second)
		assert.True(t, b.Allow())
		assert.True(t, b.RecordFailure().Opened)
		assert.True(t, b.IsOpen())
	})

	t.Run("reset closes", func(t *testing.T) {
		b, _ := newBreaker()
		for range 3 {
			b.RecordFailure()
		}
		b.Reset()
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, "captcha", b.Name())
	})
}
