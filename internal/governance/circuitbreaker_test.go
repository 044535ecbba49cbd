package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(clock *fakeClock, config BreakerConfig) *Breaker {
	b := NewBreaker(config)
	b.now = clock.Now
	return b
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	b := newTestBreaker(clock, BreakerConfig{FailureThreshold: 3, Cooldown: 30 * time.Second})

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.Record(false)
		assert.Equal(t, StateClosed, b.State())
	}

	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	b := newTestBreaker(clock, BreakerConfig{FailureThreshold: 3, Cooldown: 30 * time.Second})

	b.Record(false)
	b.Record(false)
	b.Record(true)
	b.Record(false)
	b.Record(false)
	assert.Equal(t, StateClosed, b.State())

	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenAdmitsSingleTrial(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	b := newTestBreaker(clock, BreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Second})

	b.Record(false)
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.Allow())

	clock.Advance(31 * time.Second)
	require.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// Only the first caller after the cooldown gets through.
	assert.False(t, b.Allow())

	b.Record(true)
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenFailureRestartsCooldown(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	b := newTestBreaker(clock, BreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Second})

	b.Record(false)
	clock.Advance(31 * time.Second)
	require.True(t, b.Allow())

	b.Record(false)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
	assert.Equal(t, 30*time.Second, b.Remaining())

	clock.Advance(31 * time.Second)
	assert.True(t, b.Allow())
}

func TestBreakerRemaining(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	b := newTestBreaker(clock, BreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Second})

	assert.Equal(t, time.Duration(0), b.Remaining())
	b.Record(false)
	assert.Equal(t, 30*time.Second, b.Remaining())
	clock.Advance(10 * time.Second)
	assert.Equal(t, 20*time.Second, b.Remaining())
}

func TestBreakerManagerNotifiesTransitions(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	var transitions []Transition
	m := NewBreakerManager(BreakerConfig{FailureThreshold: 2, Cooldown: 30 * time.Second}, func(tr Transition) {
		transitions = append(transitions, tr)
	})
	m.Get("openai").now = clock.Now

	m.Record("openai", false)
	m.Record("openai", false)
	require.Len(t, transitions, 1)
	assert.Equal(t, Transition{Provider: "openai", From: StateClosed, To: StateOpen}, transitions[0])

	clock.Advance(31 * time.Second)
	require.True(t, m.Allow("openai"))
	m.Record("openai", true)
	require.Len(t, transitions, 2)
	assert.Equal(t, Transition{Provider: "openai", From: StateHalfOpen, To: StateClosed}, transitions[1])
}

func TestBreakerManagerAllOpenRetryAfter(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	m := NewBreakerManager(BreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Second}, nil)

	// No breakers registered yet: the fleet counts as available.
	allOpen, _ := m.AllOpenRetryAfter()
	assert.False(t, allOpen)

	m.Get("openai").now = clock.Now
	m.Get("anthropic").now = clock.Now

	m.Record("openai", false)
	allOpen, _ = m.AllOpenRetryAfter()
	assert.False(t, allOpen)

	clock.Advance(10 * time.Second)
	m.Record("anthropic", false)
	allOpen, retryAfter := m.AllOpenRetryAfter()
	require.True(t, allOpen)
	assert.Equal(t, 20*time.Second, retryAfter)

	states := m.States()
	assert.Equal(t, StateOpen, states["openai"])
	assert.Equal(t, StateOpen, states["anthropic"])
}

func TestBreakerManagerAllOpenEndsAfterCooldown(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	m := NewBreakerManager(BreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Second}, nil)
	m.Get("openai").now = clock.Now

	m.Record("openai", false)
	allOpen, retryAfter := m.AllOpenRetryAfter()
	require.True(t, allOpen)
	assert.Equal(t, 30*time.Second, retryAfter)

	// Once the cooldown elapses the breaker is ready for its half-open
	// trial, so the fleet must stop short-circuiting even though no Allow
	// call has flipped the state yet.
	clock.Advance(31 * time.Second)
	allOpen, retryAfter = m.AllOpenRetryAfter()
	assert.False(t, allOpen)
	assert.Equal(t, time.Duration(0), retryAfter)
	assert.Equal(t, StateOpen, m.States()["openai"])

	// The next provider call is admitted as the trial and its success
	// closes the breaker.
	require.True(t, m.Allow("openai"))
	m.Record("openai", true)
	assert.Equal(t, StateClosed, m.States()["openai"])
}
