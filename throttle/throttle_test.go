package throttle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthony-cros/hookup/throttle"
)

func TestNoThrottleIsImmediatelyTerminal(t *testing.T) {
	_, ok := throttle.NoThrottle.Delay()
	assert.False(t, ok)
}

func TestFixedRepeatsThenTerminates(t *testing.T) {
	th := throttle.Fixed(100*time.Millisecond, 2)

	d, ok := th.Delay()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)

	th = th.Next()
	d, ok = th.Delay()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)

	th = th.Next()
	_, ok = th.Delay()
	assert.False(t, ok, "schedule must terminate after maxAttempts steps")
}

func TestIndefiniteNeverTerminates(t *testing.T) {
	th := throttle.Indefinite(50 * time.Millisecond)
	for i := 0; i < 50; i++ {
		d, ok := th.Delay()
		require.True(t, ok)
		assert.Equal(t, 50*time.Millisecond, d)
		th = th.Next()
	}
}

func TestStepsYieldsExactSchedule(t *testing.T) {
	th := throttle.Steps(100*time.Millisecond, 200*time.Millisecond)

	d, ok := th.Delay()
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, d)

	th = th.Next()
	d, ok = th.Delay()
	require.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, d)

	th = th.Next()
	_, ok = th.Delay()
	assert.False(t, ok)
}

func TestExponentialGrowsTowardsMax(t *testing.T) {
	th := throttle.Exponential(10*time.Millisecond, 100*time.Millisecond, -1)

	first, ok := th.Delay()
	require.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, first)

	var last time.Duration
	for i := 0; i < 20; i++ {
		th = th.Next()
		d, ok := th.Delay()
		require.True(t, ok)
		last = d
	}
	assert.Greater(t, last, first)
}

func TestExponentialRespectsMaxAttempts(t *testing.T) {
	th := throttle.Exponential(time.Millisecond, time.Second, 1)
	_, ok := th.Delay()
	require.True(t, ok)

	th = th.Next()
	_, ok = th.Delay()
	assert.False(t, ok)
}

func TestZeroMaxAttemptsIsTerminal(t *testing.T) {
	_, ok := throttle.Fixed(time.Second, 0).Delay()
	assert.False(t, ok)

	_, ok = throttle.Exponential(time.Second, time.Minute, 0).Delay()
	assert.False(t, ok)
}
