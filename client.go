package hookup

import (
	"context"

	"github.com/anthony-cros/hookup/envelope"
	"github.com/anthony-cros/hookup/internal/fsm"
	"github.com/anthony-cros/hookup/internal/ratelimit"
)

// Client is the public, connection-scoped handle: build one with New, call
// Connect, read inbound events from Events, and Close it when done. It is
// safe for concurrent use by multiple goroutines.
type Client struct {
	fsm     *fsm.FSM
	events  chan envelope.InMessage
	metrics *Metrics
	wasReconnecting bool
}

// New builds a Client in the Idle state. The returned Client owns a
// background goroutine until Close is called.
func New(settings Settings) *Client {
	c := &Client{
		events:  make(chan envelope.InMessage, 64),
		metrics: settings.metrics,
	}

	var limiter *ratelimit.Limiter
	if settings.rateLimits != nil {
		limiter = ratelimit.New(settings.rateLimits, settings.logger)
	}

	c.fsm = fsm.New(fsm.Config{
		URI:            settings.uri,
		Version:        settings.version,
		Protocols:      settings.protocols,
		InitialHeaders: settings.headers,
		ConnectTimeout: settings.connectTimeout,
		CloseTimeout:   settings.closeTimeout,
		PingInterval:   settings.pingInterval,
		WireFormat:     settings.wireFormat,
		Buffer:         settings.buf,
		Throttle:       settings.thr,
		Dialer:         settings.dialer,
		RateLimiter:    limiter,
		Logger:         settings.logger,
		OnEvent:        c.deliver,
	})
	return c
}

// deliver is the FSM's OnEvent callback: it updates metrics, then forwards
// the event to the client's channel without blocking the FSM's own
// goroutines. A full channel (an application not reading Events fast
// enough) drops the event rather than stalling the connection.
func (c *Client) deliver(msg envelope.InMessage) {
	switch msg.(type) {
	case envelope.AckFailed:
		c.metrics.recordAckFailed()
	case envelope.Reconnecting:
		c.metrics.recordReconnecting()
		c.wasReconnecting = true
	case envelope.Connected:
		if c.wasReconnecting {
			c.metrics.recordThrottleReset()
			c.wasReconnecting = false
		}
	}

	select {
	case c.events <- msg:
	default:
	}
}

// Events returns the channel every inbound lifecycle and application
// message arrives on. Callers should keep reading it promptly: a full
// buffer drops further events until drained.
func (c *Client) Events() <-chan envelope.InMessage {
	return c.events
}

// Connect dials and performs the handshake, bounded internally at the
// configured connect timeout. It resolves once the connection reaches Open
// (and, if a buffer is configured, once its drain has finished).
func (c *Client) Connect(ctx context.Context) (envelope.Result, error) {
	return c.fsm.Connect(ctx)
}

// Disconnect closes the connection and cancels any in-flight reconnect
// delay. It is idempotent.
func (c *Client) Disconnect(ctx context.Context) (envelope.Result, error) {
	return c.fsm.Disconnect(ctx)
}

// Reconnect forces a fresh connection episode, pre-empting any current one.
// It resolves Cancelled immediately if the configured throttle has already
// reached its terminal step.
func (c *Client) Reconnect(ctx context.Context) (envelope.Result, error) {
	return c.fsm.Reconnect(ctx)
}

// Send writes msg. If the connection is not Open, msg is buffered (when a
// buffer is configured) or dropped. Wrap msg in envelope.Ackable to block
// until the peer acks it or its timeout elapses.
func (c *Client) Send(ctx context.Context, msg envelope.OutMessage) (envelope.Result, error) {
	return c.fsm.Send(ctx, msg)
}

// IsConnected reports whether the connection is currently Open.
func (c *Client) IsConnected(ctx context.Context) bool {
	return c.fsm.IsConnected(ctx)
}

// Close shuts the client down for good, blocking up to the configured close
// timeout. Further Connect, Disconnect, Reconnect and Send calls return an
// error.
func (c *Client) Close(ctx context.Context) error {
	return c.fsm.Close(ctx)
}
