package ratelimit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anthony-cros/hookup/internal/ratelimit"
)

func TestAllowConsumesBurstThenBlocks(t *testing.T) {
	l := ratelimit.New(map[ratelimit.Kind]ratelimit.Limit{
		ratelimit.KindText: {MaxBurst: 3, RefillInterval: time.Hour},
	}, nil)

	assert.True(t, l.Allow(ratelimit.KindText))
	assert.True(t, l.Allow(ratelimit.KindText))
	assert.True(t, l.Allow(ratelimit.KindText))
	assert.False(t, l.Allow(ratelimit.KindText), "burst exhausted, should block")
}

func TestAllowRefillsOverTime(t *testing.T) {
	l := ratelimit.New(map[ratelimit.Kind]ratelimit.Limit{
		ratelimit.KindText: {MaxBurst: 1, RefillInterval: 10 * time.Millisecond},
	}, nil)

	assert.True(t, l.Allow(ratelimit.KindText))
	assert.False(t, l.Allow(ratelimit.KindText))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow(ratelimit.KindText), "bucket should have refilled")
}

func TestUnconfiguredKindFallsBackToGenerousDefault(t *testing.T) {
	l := ratelimit.New(map[ratelimit.Kind]ratelimit.Limit{}, nil)
	assert.True(t, l.Allow(ratelimit.KindBinary))
}

func TestIndependentKindsHaveIndependentBuckets(t *testing.T) {
	l := ratelimit.New(map[ratelimit.Kind]ratelimit.Limit{
		ratelimit.KindText: {MaxBurst: 1, RefillInterval: time.Hour},
		ratelimit.KindJSON: {MaxBurst: 1, RefillInterval: time.Hour},
	}, nil)

	assert.True(t, l.Allow(ratelimit.KindText))
	assert.False(t, l.Allow(ratelimit.KindText))
	assert.True(t, l.Allow(ratelimit.KindJSON), "a different kind's bucket must be unaffected")
}

func TestDefaultLimitsCoversAllKinds(t *testing.T) {
	limits := ratelimit.DefaultLimits()
	for _, k := range []ratelimit.Kind{ratelimit.KindText, ratelimit.KindJSON, ratelimit.KindBinary, ratelimit.KindAckRequest} {
		_, ok := limits[k]
		assert.True(t, ok, "missing default limit for kind %q", k)
	}
}
