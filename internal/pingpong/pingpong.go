// Package pingpong watches transport idleness and emits ping frames, and
// answers inbound pings with pongs synchronously. Grounded on the teacher's
// sendPings ticker loop (internal/heartbeat/websocket.go) and on the
// SetPongHandler/SetPingHandler wiring in the tendermint ws_client example.
package pingpong

import (
	"context"
	"time"

	"github.com/anthony-cros/hookup/internal/transport"
)

// Watcher emits a ping on conn once every interval and answers inbound pings
// with a pong. The interval is a fixed period: reads and writes on conn do
// not restart it, so pings are sent whether or not the connection is
// otherwise idle. It never
// feeds the application receive stream: pings and pongs are transport-level
// liveness traffic only.
type Watcher struct {
	conn     transport.Conn
	interval time.Duration
}

// NewWatcher wires ping/pong handling onto conn. If interval is zero, idle
// pinging is disabled (inbound pings are still answered).
func NewWatcher(conn transport.Conn, interval time.Duration) *Watcher {
	w := &Watcher{conn: conn, interval: interval}
	conn.SetPingHandler(func(payload string) error {
		return conn.WritePong([]byte(payload))
	})
	conn.SetPongHandler(func(string) error {
		return nil // consumed silently
	})
	return w
}

// Run blocks, emitting idle pings until ctx is cancelled or a write fails.
// The caller runs this in its own goroutine per connection attempt.
func (w *Watcher) Run(ctx context.Context) error {
	if w.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.conn.WritePing(nil); err != nil {
				return err
			}
		}
	}
}
