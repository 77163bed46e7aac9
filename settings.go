// Package hookup is a resilient WebSocket client: it maintains a logical
// connection across transient network failures with configurable
// reconnect throttling, offline send buffering, idle ping/pong liveness,
// and an application-level ack protocol layered over text frames.
//
// Construct a Client from Settings built via NewSettings, call Connect,
// and read inbound events from Client.Events.
package hookup

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

// Settings is an immutable connection configuration, produced by
// SettingsBuilder. There are no bean-style setters on Settings itself —
// every field is fixed once Build is called, the same immutable-config
// shape as the teacher's viper-loaded Config after Load returns.
type Settings struct {
	uri            string
	version        envelope.ProtocolVersion
	protocols      []string
	headers        http.Header
	connectTimeout time.Duration
	closeTimeout   time.Duration
	pingInterval   time.Duration
	wireFormat     wireformat.Format
	buf            buffer.Buffer
	thr            throttle.Throttle
	dialer         transport.Dialer
	rateLimits     map[ratelimit.Kind]ratelimit.Limit
	logger         *slog.Logger
	metrics        *Metrics
}

// SettingsBuilder accumulates Settings fields one call at a time; each
// method returns the same builder so calls chain, and Build freezes the
// result.
type SettingsBuilder struct {
	s Settings
}

// NewSettings starts a builder for a connection to uri, defaulting to RFC
// 6455 (V13), a 5-second connect timeout, a 30-second close timeout,
// pinging disabled, the default JSON wire format, no buffer, and no
// automatic reconnection.
func NewSettings(uri string) *SettingsBuilder {
	return &SettingsBuilder{s: Settings{
		uri:            uri,
		version:        envelope.V13,
		connectTimeout: 5 * time.Second,
		closeTimeout:   30 * time.Second,
		wireFormat:     wireformat.JSONFormat{},
		thr:            throttle.NoThrottle,
	}}
}

func (b *SettingsBuilder) Version(v envelope.ProtocolVersion) *SettingsBuilder {
	b.s.version = v
	return b
}

func (b *SettingsBuilder) Protocols(protocols ...string) *SettingsBuilder {
	b.s.protocols = protocols
	return b
}

func (b *SettingsBuilder) Headers(h http.Header) *SettingsBuilder {
	b.s.headers = h
	return b
}

func (b *SettingsBuilder) ConnectTimeout(d time.Duration) *SettingsBuilder {
	b.s.connectTimeout = d
	return b
}

func (b *SettingsBuilder) CloseTimeout(d time.Duration) *SettingsBuilder {
	b.s.closeTimeout = d
	return b
}

// PingInterval sets the fixed period at which pings are sent while the
// connection is Open; other traffic does not postpone them. Zero (the
// default) disables pinging.
func (b *SettingsBuilder) PingInterval(d time.Duration) *SettingsBuilder {
	b.s.pingInterval = d
	return b
}

func (b *SettingsBuilder) WireFormat(f wireformat.Format) *SettingsBuilder {
	b.s.wireFormat = f
	return b
}

// Buffer enables offline send buffering: writes made while not connected
// are held by buf and replayed in order once a connection reopens.
func (b *SettingsBuilder) Buffer(buf buffer.Buffer) *SettingsBuilder {
	b.s.buf = buf
	return b
}

// Throttle sets the reconnect delay schedule consumed after a drop. The
// default, throttle.NoThrottle, disables automatic reconnection entirely.
func (b *SettingsBuilder) Throttle(t throttle.Throttle) *SettingsBuilder {
	b.s.thr = t
	return b
}

// RateLimits enables per-kind inbound rate limiting. A nil map (the
// default) disables it; ratelimit.DefaultLimits() is a reasonable starting
// point.
func (b *SettingsBuilder) RateLimits(limits map[ratelimit.Kind]ratelimit.Limit) *SettingsBuilder {
	b.s.rateLimits = limits
	return b
}

func (b *SettingsBuilder) Logger(l *slog.Logger) *SettingsBuilder {
	b.s.logger = l
	return b
}

// Metrics wires Prometheus instrumentation; see NewMetrics.
func (b *SettingsBuilder) Metrics(m *Metrics) *SettingsBuilder {
	b.s.metrics = m
	return b
}

// dialer is unexported and test-only: production Settings never sets it,
// since the zero value selects the default gorilla/websocket dialer.
func (b *SettingsBuilder) dialer(d transport.Dialer) *SettingsBuilder {
	b.s.dialer = d
	return b
}

func (b *SettingsBuilder) Build() Settings {
	return b.s
}
