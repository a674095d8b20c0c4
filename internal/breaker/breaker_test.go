package breaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/breaker"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newBreaker(clock *fakeClock) *breaker.Breaker {
	return breaker.New(breaker.Config{
		Threshold: 3,
		Cooldown:  time.Minute,
		Now:       clock.Now,
	})
}

func TestBreaker(t *testing.T) {
	t.Run("should stay closed below the threshold", func(t *testing.T) {
		b := newBreaker(&fakeClock{now: time.Unix(0, 0)})

		b.Failure()
		b.Failure()

		require.Equal(t, breaker.StateClosed, b.State())
		require.True(t, b.Allow())
		require.Equal(t, uint(2), b.Failures())
	})

	t.Run("should open at the threshold", func(t *testing.T) {
		b := newBreaker(&fakeClock{now: time.Unix(0, 0)})

		for range 3 {
			b.Failure()
		}

		require.Equal(t, breaker.StateOpen, b.State())
		require.False(t, b.Allow())
	})

	t.Run("should admit a single trial after the cooldown", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		b := newBreaker(clock)
		for range 3 {
			b.Failure()
		}

		clock.Advance(time.Minute)

		require.Equal(t, breaker.StateHalfOpen, b.State())
		require.True(t, b.Allow())
		require.False(t, b.Allow())
	})

	t.Run("should close when the trial succeeds", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		b := newBreaker(clock)
		for range 3 {
			b.Failure()
		}
		clock.Advance(time.Minute)
		require.True(t, b.Allow())

		b.Success()

		require.Equal(t, breaker.StateClosed, b.State())
		require.Equal(t, uint(0), b.Failures())
		require.True(t, b.Allow())
	})

	t.Run("should re-open when the trial fails", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		b := newBreaker(clock)
		for range 3 {
			b.Failure()
		}
		clock.Advance(time.Minute)
		require.True(t, b.Allow())

		b.Failure()

		require.Equal(t, breaker.StateOpen, b.State())
		require.False(t, b.Allow())
	})

	t.Run("should free an abandoned trial on release", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		b := newBreaker(clock)
		for range 3 {
			b.Failure()
		}
		clock.Advance(time.Minute)

		release, ok := b.Acquire()
		require.True(t, ok)
		require.False(t, b.Allow())

		release()

		require.Equal(t, breaker.StateHalfOpen, b.State())
		require.True(t, b.Allow())
	})

	t.Run("should ignore a stale release", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		b := newBreaker(clock)
		for range 3 {
			b.Failure()
		}
		clock.Advance(time.Minute)

		release, ok := b.Acquire()
		require.True(t, ok)
		b.Failure()
		clock.Advance(time.Minute)
		_, ok = b.Acquire()
		require.True(t, ok)

		release()

		require.False(t, b.Allow())
	})

	t.Run("should treat release after a closed call as a no-op", func(t *testing.T) {
		b := newBreaker(&fakeClock{now: time.Unix(0, 0)})

		release, ok := b.Acquire()
		require.True(t, ok)
		release()

		require.Equal(t, breaker.StateClosed, b.State())
	})

	t.Run("should reset to closed", func(t *testing.T) {
		b := newBreaker(&fakeClock{now: time.Unix(0, 0)})
		for range 5 {
			b.Failure()
		}

		b.Reset()

		require.Equal(t, breaker.StateClosed, b.State())
		require.True(t, b.Allow())
	})

	t.Run("should apply defaults for zero config", func(t *testing.T) {
		b := breaker.New(breaker.Config{})

		b.Failure()
		b.Failure()
		require.Equal(t, breaker.StateClosed, b.State())

		b.Failure()
		require.Equal(t, breaker.StateOpen, b.State())
	})
}
