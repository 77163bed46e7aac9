// Package fsm drives a single connection's lifecycle: dial, handshake,
// stay open, recover from drops, and wind down on request. It is the
// generalization of the teacher's ConnectSignaling/runSignalingSession
// reconnect loop (internal/heartbeat/websocket.go) away from a single
// Socket.IO signaling channel and towards any WebSocket peer, combined with
// the attempt-counted backoff bookkeeping pattern from the tendermint
// ws_client example's reconnectRoutine.
package fsm

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/anthony-cros/hookup/buffer"
	"github.com/anthony-cros/hookup/envelope"
	"github.com/anthony-cros/hookup/internal/ratelimit"
	"github.com/anthony-cros/hookup/internal/transport"
	"github.com/anthony-cros/hookup/throttle"
	"github.com/anthony-cros/hookup/wireformat"
)

// Config is everything one FSM instance needs for the lifetime of a logical
// connection, across as many dial attempts and reconnect episodes as its
// Throttle allows.
type Config struct {
	URI            string
	Version        envelope.ProtocolVersion
	Protocols      []string
	InitialHeaders http.Header

	// ConnectTimeout bounds a single dial-plus-handshake attempt. Zero
	// selects the default of 5 seconds.
	ConnectTimeout time.Duration
	// CloseTimeout bounds how long Close waits for an in-flight attempt or
	// drain to unwind before returning anyway. Zero selects 10 seconds.
	CloseTimeout time.Duration
	// PingInterval is the fixed period at which pings are sent while the
	// connection is Open; other reads and writes do not postpone them. Zero
	// disables pinging (inbound pings are still answered).
	PingInterval time.Duration

	WireFormat wireformat.Format
	// Buffer holds outbound writes made while not Open, replayed in FIFO
	// order once a connection reopens. Nil disables offline buffering:
	// writes made while not Open are dropped.
	Buffer buffer.Buffer
	// Throttle is the reconnect delay schedule consumed after the first
	// drop. Nil selects throttle.NoThrottle (no automatic reconnection).
	Throttle throttle.Throttle
	// Dialer overrides the default gorilla/websocket-backed dialer; tests
	// substitute an in-process fake here. Only consulted for V13.
	Dialer transport.Dialer

	// RateLimiter, if non-nil, bounds inbound application traffic per kind.
	// An inbound Ack is never subject to it regardless of configuration.
	RateLimiter *ratelimit.Limiter

	Logger *slog.Logger
	// OnEvent delivers every inbound lifecycle and application message. It
	// is invoked from whichever goroutine produced the event — the read
	// loop, the run loop, or an ack timer's own goroutine — and must be
	// safe to call concurrently with itself.
	OnEvent func(envelope.InMessage)
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.WireFormat == nil {
		c.WireFormat = wireformat.JSONFormat{}
	}
	if c.Throttle == nil {
		c.Throttle = throttle.NoThrottle
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.OnEvent == nil {
		c.OnEvent = func(envelope.InMessage) {}
	}
	return c
}

// Phase is the connection's externally observable lifecycle state.
//
// TCP connect and the HTTP upgrade are not split into separate observable
// phases: gorilla/websocket.Dialer.Dial performs both in one call, so there
// is no point between them the FSM could surface without faking it. Both
// are covered by Connecting.
type Phase int

const (
	Idle Phase = iota
	Connecting
	Open
	Closing
	Closed
	Reconnecting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
