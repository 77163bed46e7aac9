// Package transport wraps gorilla/websocket behind a small interface so the
// FSM and its tests never depend on a live TCP socket. It plays the role
// spec.md calls the pluggable FrameCodec: text, binary, ping, pong, and
// close frames in, the same five frame types out.
//
// Continuation frames are not modelled here: gorilla/websocket's ReadMessage
// already reassembles fragmented messages into a single Text/Binary read
// before handing it back, so a standalone continuation frame never reaches
// this layer under the default transport. There is no continuation FrameType;
// the FSM's router logs and drops any frame type it does not handle in its
// default case (see internal/fsm/router.go) — this is a documented
// limitation, not a bug: this release does not reassemble fragmentation
// itself.
package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anthony-cros/hookup/hookuperr"
)

// FrameType enumerates the frame kinds the FSM's router dispatches on.
type FrameType int

const (
	TextFrame FrameType = iota
	BinaryFrame
	PingFrame
	PongFrame
	CloseFrame
)

// Conn is the minimal bidirectional frame channel the FSM depends on.
type Conn interface {
	// ReadFrame blocks for the next data frame (text or binary) or close
	// frame. Ping/Pong are delivered via the handlers registered with
	// SetPingHandler/SetPongHandler instead, mirroring gorilla's control-
	// frame callback model.
	ReadFrame() (FrameType, []byte, error)

	WriteText(payload string) error
	WriteBinary(payload []byte) error
	WritePing(payload []byte) error
	WritePong(payload []byte) error
	WriteClose(code int, reason string) error

	SetPingHandler(h func(payload string) error)
	SetPongHandler(h func(payload string) error)

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	Close() error
}

// gorillaConn adapts *websocket.Conn to Conn.
type gorillaConn struct {
	conn *websocket.Conn
}

// Wrap adapts an already-established *websocket.Conn.
func Wrap(conn *websocket.Conn) Conn {
	return &gorillaConn{conn: conn}
}

func (g *gorillaConn) ReadFrame() (FrameType, []byte, error) {
	mt, data, err := g.conn.ReadMessage()
	if err != nil {
		return 0, nil, err
	}
	switch mt {
	case websocket.TextMessage:
		return TextFrame, data, nil
	case websocket.BinaryMessage:
		return BinaryFrame, data, nil
	case websocket.CloseMessage:
		return CloseFrame, data, nil
	default:
		// A post-handshake message outside the WebSocket frame types
		// gorilla/websocket itself recognizes is a protocol violation, not a
		// transient transport failure: the peer is speaking something other
		// than the negotiated protocol.
		return 0, nil, hookuperr.New(hookuperr.Protocol, fmt.Errorf("transport: unexpected message type %d", mt))
	}
}

func (g *gorillaConn) WriteText(payload string) error {
	return g.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

func (g *gorillaConn) WriteBinary(payload []byte) error {
	return g.conn.WriteMessage(websocket.BinaryMessage, payload)
}

func (g *gorillaConn) WritePing(payload []byte) error {
	return g.conn.WriteMessage(websocket.PingMessage, payload)
}

func (g *gorillaConn) WritePong(payload []byte) error {
	return g.conn.WriteMessage(websocket.PongMessage, payload)
}

func (g *gorillaConn) WriteClose(code int, reason string) error {
	return g.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func (g *gorillaConn) SetPingHandler(h func(string) error) {
	g.conn.SetPingHandler(func(appData string) error {
		return h(appData)
	})
}

func (g *gorillaConn) SetPongHandler(h func(string) error) {
	g.conn.SetPongHandler(func(appData string) error {
		return h(appData)
	})
}

func (g *gorillaConn) SetReadDeadline(t time.Time) error  { return g.conn.SetReadDeadline(t) }
func (g *gorillaConn) SetWriteDeadline(t time.Time) error { return g.conn.SetWriteDeadline(t) }
func (g *gorillaConn) Close() error                       { return g.conn.Close() }

// syncConn mutex-guards every Write* call on an underlying Conn.
// gorilla/websocket allows at most one concurrent writer; the FSM has three
// independent sources of outbound frames (application sends, idle pings, and
// ack responses written off the read loop), so all of them share one
// Synchronized wrapper around the live connection rather than coordinating
// through a single goroutine.
type syncConn struct {
	Conn
	mu sync.Mutex
}

// Synchronized wraps conn so all Write* methods are mutually exclusive.
// ReadFrame and the control-handler setters pass through unguarded: gorilla
// already serializes reads internally and only ever calls ping/pong handlers
// from within the one goroutine doing the reading.
func Synchronized(conn Conn) Conn {
	return &syncConn{Conn: conn}
}

func (s *syncConn) WriteText(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteText(payload)
}

func (s *syncConn) WriteBinary(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteBinary(payload)
}

func (s *syncConn) WritePing(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WritePing(payload)
}

func (s *syncConn) WritePong(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WritePong(payload)
}

func (s *syncConn) WriteClose(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteClose(code, reason)
}

// Dialer opens a new Conn. Production code uses GorillaDialer wrapping
// gorilla/websocket.Dialer; tests substitute an in-process fake.
type Dialer interface {
	Dial(urlStr string, header http.Header) (Conn, *http.Response, error)
}

// GorillaDialer adapts *websocket.Dialer to Dialer.
type GorillaDialer struct {
	Dialer *websocket.Dialer
}

func (d GorillaDialer) Dial(urlStr string, header http.Header) (Conn, *http.Response, error) {
	conn, resp, err := d.Dialer.Dial(urlStr, header)
	if err != nil {
		return nil, resp, err
	}
	return Wrap(conn), resp, nil
}
