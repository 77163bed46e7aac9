// Package ratelimit guards the connection against a misbehaving peer
// flooding inbound traffic. Adapted from the teacher's
// internal/heartbeat.EventRateLimiter: the same per-kind token bucket, but
// keyed on hookup's inbound message kinds instead of a Socket.IO
// MessageType. It limits message counts only; payload sizes are not checked.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Kind identifies what an inbound message counts against for rate-limiting
// purposes. It is coarser than envelope.InMessage's concrete types: every
// application payload kind gets its own bucket, but acks are never limited
// (see Limiter).
type Kind string

const (
	KindText       Kind = "text"
	KindJSON       Kind = "json"
	KindBinary     Kind = "binary"
	KindAckRequest Kind = "ack_request"
)

// Limit configures one kind's token bucket.
type Limit struct {
	MaxBurst       int
	RefillInterval time.Duration
}

// DefaultLimits are calibrated for a single logical connection rather than
// the teacher's many-device signaling fan-in: generous enough for normal
// application traffic, tight enough to blunt a flood.
func DefaultLimits() map[Kind]Limit {
	return map[Kind]Limit{
		KindText:       {MaxBurst: 50, RefillInterval: time.Second},
		KindJSON:       {MaxBurst: 50, RefillInterval: time.Second},
		KindBinary:     {MaxBurst: 50, RefillInterval: time.Second},
		KindAckRequest: {MaxBurst: 20, RefillInterval: time.Second},
	}
}

type bucket struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// Limiter is a set of independent per-kind token buckets.
//
// Ack is deliberately not a Kind this limiter ever sees: an AckRequest's
// inner payload is limited like any other inbound message, but the bare Ack
// that resolves an outbound send must never be dropped, or a perfectly
// healthy send would spuriously time out waiting for an ack that arrived
// but was rate-limited away. Callers must not route Ack through Allow.
type Limiter struct {
	mu      sync.Mutex
	limits  map[Kind]Limit
	buckets map[Kind]*bucket
	logger  *slog.Logger
}

// New builds a Limiter from limits. A nil logger selects slog.Default().
func New(limits map[Kind]Limit, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{limits: limits, buckets: make(map[Kind]*bucket), logger: logger}
}

// Allow reports whether a message of kind should be processed, refilling
// and consuming tokens from its bucket as a side effect.
func (l *Limiter) Allow(kind Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[kind]
	if !ok {
		limit, known := l.limits[kind]
		if !known {
			limit = Limit{MaxBurst: 10, RefillInterval: 5 * time.Second}
		}
		b = &bucket{tokens: limit.MaxBurst, maxTokens: limit.MaxBurst, refillRate: limit.RefillInterval, lastRefill: time.Now()}
		l.buckets[kind] = b
	}

	now := time.Now()
	if elapsed := now.Sub(b.lastRefill); elapsed >= b.refillRate && b.tokens < b.maxTokens && b.refillRate > 0 {
		add := int(elapsed / b.refillRate)
		b.tokens += add
		if b.tokens > b.maxTokens {
			b.tokens = b.maxTokens
		}
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	l.logger.Warn("hookup: rate limit exceeded, dropping inbound message", "kind", string(kind))
	return false
}
