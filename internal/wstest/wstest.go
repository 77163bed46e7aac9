// Package wstest is an in-process WebSocket peer for tests: a loopback
// httptest.Server upgraded by gorilla/websocket, grounded on the testServer
// helper from the OCAP2 storage/websocket package's test suite (see
// other_examples in the retrieval pack this module was built from), rather
// than a real network listener or a hand-rolled fake transport.Conn.
package wstest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Peer is a scriptable WebSocket server: it accepts any number of
// connections, concurrently, and hands each one to Handler.
type Peer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    []*websocket.Conn

	// Handler is invoked with each accepted connection, on its own
	// goroutine. Close the connection to drop it. A nil Handler (the
	// default) selects Echo; the value is read as each connection arrives.
	Handler func(*websocket.Conn)
}

// New builds a Peer and starts serving. Call Close when done.
func New() *Peer {
	p := &Peer{upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}}
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	return p
}

func (p *Peer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p.mu.Lock()
	p.conns = append(p.conns, conn)
	handler := p.Handler
	p.mu.Unlock()

	if handler == nil {
		handler = Echo
	}
	handler(conn)
}

// URL returns the ws:// URL clients should dial.
func (p *Peer) URL() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

// CloseConns forcibly drops every connection accepted so far, simulating a
// transport-level failure the client must notice and reconnect from.
func (p *Peer) CloseConns() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		_ = c.Close()
	}
	p.conns = nil
}

// Close shuts the server down.
func (p *Peer) Close() {
	p.srv.Close()
}

// Echo reads messages and writes them straight back until the connection
// errors or closes; the default Handler.
func Echo(conn *websocket.Conn) {
	defer conn.Close()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return
		}
	}
}
