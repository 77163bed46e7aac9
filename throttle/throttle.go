// Package throttle implements the reconnect-delay schedules consumed by the
// connection FSM. A Throttle is a lazy, immutable sequence: Delay reports the
// wait before the next attempt (or that the sequence has reached its
// terminal, cancel-reconnect step), and Next returns the successor.
package throttle

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Throttle is a step in a reconnect schedule.
type Throttle interface {
	// Delay returns the wait before the next connection attempt. ok is
	// false if this step is terminal — the caller must stop reconnecting.
	Delay() (d time.Duration, ok bool)

	// Next returns the successor step, consuming one step of the schedule.
	Next() Throttle
}

// terminal is the shared terminal value: no further reconnect attempts.
type terminal struct{}

func (terminal) Delay() (time.Duration, bool) { return 0, false }
func (terminal) Next() Throttle               { return terminal{} }

// Terminal is the schedule's cancel signal, reusable across implementations.
var Terminal Throttle = terminal{}

// NoThrottle disables automatic reconnection entirely: its very first Delay
// is already terminal.
var NoThrottle Throttle = terminal{}

// fixed repeats the same delay for a bounded (or unbounded) number of
// attempts.
type fixed struct {
	delay     time.Duration
	remaining int // -1 means unbounded
}

// Fixed returns a throttle that waits delay before every attempt. maxAttempts
// bounds how many attempts are scheduled before the schedule terminates;
// pass a negative maxAttempts for an unbounded (indefinite) fixed schedule.
func Fixed(delay time.Duration, maxAttempts int) Throttle {
	if maxAttempts == 0 {
		return Terminal
	}
	return fixed{delay: delay, remaining: maxAttempts}
}

func (f fixed) Delay() (time.Duration, bool) {
	return f.delay, true
}

func (f fixed) Next() Throttle {
	if f.remaining < 0 {
		return f
	}
	if f.remaining <= 1 {
		return Terminal
	}
	return fixed{delay: f.delay, remaining: f.remaining - 1}
}

// Indefinite is a Fixed throttle with no attempt cap — reconnection is
// retried forever at the given delay.
func Indefinite(delay time.Duration) Throttle {
	return Fixed(delay, -1)
}

// steps is an explicit, finite delay sequence — useful in tests that need an
// exact schedule rather than a formula.
type steps struct {
	delays []time.Duration
}

// Steps returns a throttle that yields exactly the given delays, in order,
// and terminates immediately after the last one has been consumed.
func Steps(delays ...time.Duration) Throttle {
	if len(delays) == 0 {
		return Terminal
	}
	return steps{delays: delays}
}

func (s steps) Delay() (time.Duration, bool) {
	return s.delays[0], true
}

func (s steps) Next() Throttle {
	if len(s.delays) <= 1 {
		return Terminal
	}
	return steps{delays: s.delays[1:]}
}

// exponential grows the delay via a cenkalti/backoff.ExponentialBackOff,
// capped at max and bounded to maxAttempts (or unbounded if negative). Each
// step holds its own copy of the backoff state, so Next never changes the
// receiver.
type exponential struct {
	bo        *backoff.ExponentialBackOff
	current   time.Duration
	remaining int
}

// Exponential returns a throttle starting at initial, growing by
// backoff.DefaultMultiplier (1.5x) on every attempt up to max, jittered by
// backoff.DefaultRandomizationFactor. maxAttempts bounds the number of
// scheduled attempts; pass a negative value for an indefinite exponential
// schedule.
func Exponential(initial, max time.Duration, maxAttempts int) Throttle {
	if maxAttempts == 0 {
		return Terminal
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = max
	bo.MaxElapsedTime = 0 // the FSM tracks attempt count itself, not elapsed time
	bo.Reset()
	return exponential{bo: bo, current: initial, remaining: maxAttempts}
}

func (e exponential) Delay() (time.Duration, bool) {
	return e.current, true
}

func (e exponential) Next() Throttle {
	if e.remaining > 0 && e.remaining <= 1 {
		return Terminal
	}
	bo := *e.bo
	next := bo.NextBackOff()
	if next == backoff.Stop {
		return Terminal
	}
	remaining := e.remaining
	if remaining > 0 {
		remaining--
	}
	return exponential{bo: &bo, current: next, remaining: remaining}
}
