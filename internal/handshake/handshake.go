// Package handshake drives the HTTP-upgrade exchange that promotes a TCP
// connection to WebSocket framing, for both RFC 6455 (V13) and the legacy
// hixie-76 (V00) dialects, and hands the FSM a ready internal/transport.Conn
// once the swap to frame mode has happened. Grounded on the teacher's
// runSignalingSession, which performs the same dial-then-await-upgrade
// sequence via gorilla/websocket.Dialer before handing off to frame reads.
package handshake

import (
	"context"
	"crypto/md5" //nolint:gosec // hixie-76 mandates MD5; not a security boundary
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anthony-cros/hookup/envelope"
	"github.com/anthony-cros/hookup/internal/transport"
)

// State is the handshake's own lifecycle, one instance per connection
// attempt: NotStarted → Sent → Completed | Failed.
type State int

const (
	NotStarted State = iota
	Sent
	Completed
	Failed
)

// Request describes the upgrade this driver will perform.
type Request struct {
	URI             string
	Version         envelope.ProtocolVersion
	Protocols       []string
	InitialHeaders  http.Header
	HandshakeWindow time.Duration
}

// Driver executes exactly one upgrade attempt and reports its State.
type Driver struct {
	state  State
	dialer transport.Dialer
}

// NewDriver builds a fresh handshaker for one connection attempt. A nil
// dialer selects the default gorilla/websocket-backed dialer for V13; V00
// never uses dialer (it dials raw TCP itself).
func NewDriver(dialer transport.Dialer) *Driver {
	return &Driver{state: NotStarted, dialer: dialer}
}

func (d *Driver) State() State { return d.state }

// Perform executes the upgrade. On success it returns an open transport.Conn
// in frame mode and sets State to Completed; on any failure it sets State to
// Failed and returns a plain wrapped error with no hookuperr kind attached,
// which the FSM classifies as a Transport error. No failure path here
// produces the Handshake kind.
func (d *Driver) Perform(ctx context.Context, req Request) (transport.Conn, error) {
	d.state = Sent

	var (
		conn transport.Conn
		err  error
	)
	switch req.Version {
	case envelope.V13:
		conn, err = d.performV13(ctx, req)
	case envelope.V00:
		conn, err = performV00(ctx, req)
	default:
		err = fmt.Errorf("handshake: unsupported protocol version %v", req.Version)
	}

	if err != nil {
		d.state = Failed
		return nil, err
	}
	d.state = Completed
	return conn, nil
}

func (d *Driver) performV13(ctx context.Context, req Request) (transport.Conn, error) {
	dialer := d.dialer
	if dialer == nil {
		dialer = transport.GorillaDialer{Dialer: &websocket.Dialer{
			HandshakeTimeout: req.HandshakeWindow,
		}}
	}

	header := cloneHeader(req.InitialHeaders)
	if len(req.Protocols) > 0 {
		header.Set("Sec-WebSocket-Protocol", strings.Join(req.Protocols, ","))
	}

	type dialResult struct {
		conn transport.Conn
		resp *http.Response
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, resp, err := dialer.Dial(req.URI, header)
		resultCh <- dialResult{conn, resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("handshake: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("handshake: upgrade request failed: %w", res.err)
		}
		return res.conn, nil
	}
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// --- V00 / hixie-76 ---
//
// hixie-76 never reassembles into gorilla/websocket's frame model: it frames
// UTF-8 text messages as 0x00 ... 0xFF and has no binary, ping, pong, or
// close frame of its own. This driver speaks just enough of the handshake
// and frame format to carry the TextFrame/BinaryFrame/CloseFrame surface
// internal/transport.Conn exposes — binary is rejected, ping/pong handlers
// are simply never invoked, and close is modelled as the TCP connection
// closing.

func performV00(ctx context.Context, req Request) (transport.Conn, error) {
	host, path, secure, err := parseV00URI(req.URI)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("handshake: dialing %s: %w", host, err)
	}
	if secure {
		raw.Close()
		return nil, fmt.Errorf("handshake: V00 over TLS is not supported by this driver")
	}

	key1, num1 := generateHixieKey()
	key2, num2 := generateHixieKey()
	key3 := make([]byte, 8)
	_, _ = rand.New(rand.NewSource(time.Now().UnixNano())).Read(key3) //nolint:gosec // handshake nonce, not a security token

	reqLines := []string{
		fmt.Sprintf("GET %s HTTP/1.1", path),
		fmt.Sprintf("Host: %s", host),
		"Upgrade: WebSocket",
		"Connection: Upgrade",
		fmt.Sprintf("Sec-WebSocket-Key1: %s", key1),
		fmt.Sprintf("Sec-WebSocket-Key2: %s", key2),
	}
	for k, vs := range req.InitialHeaders {
		for _, v := range vs {
			reqLines = append(reqLines, fmt.Sprintf("%s: %s", k, v))
		}
	}
	if len(req.Protocols) > 0 {
		reqLines = append(reqLines, fmt.Sprintf("Sec-WebSocket-Protocol: %s", strings.Join(req.Protocols, ",")))
	}
	reqLines = append(reqLines, "", "")

	if _, err := raw.Write([]byte(strings.Join(reqLines, "\r\n"))); err != nil {
		raw.Close()
		return nil, fmt.Errorf("handshake: writing V00 upgrade request: %w", err)
	}
	if _, err := raw.Write(key3); err != nil {
		raw.Close()
		return nil, fmt.Errorf("handshake: writing V00 key3: %w", err)
	}

	reader := textproto.NewReader(newBufReader(raw))
	statusLine, err := reader.ReadLine()
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("handshake: reading V00 status line: %w", err)
	}
	if !strings.Contains(statusLine, "101") {
		raw.Close()
		return nil, fmt.Errorf("handshake: unexpected V00 response status: %s", statusLine)
	}
	if _, err := reader.ReadMIMEHeader(); err != nil {
		raw.Close()
		return nil, fmt.Errorf("handshake: reading V00 response headers: %w", err)
	}

	// The response body is always the 16-byte MD5 challenge response,
	// which the generic HTTP response decoder must be told about
	// explicitly — it is not framed or length-prefixed in any way.
	challenge := make([]byte, 16)
	if _, err := reader.R.Read(challenge); err != nil {
		raw.Close()
		return nil, fmt.Errorf("handshake: reading V00 challenge response: %w", err)
	}

	expected := hixieChallengeResponse(num1, num2, key3)
	if string(expected) != string(challenge) {
		raw.Close()
		return nil, fmt.Errorf("handshake: V00 challenge response mismatch")
	}

	// Keep reading through the handshake's buffered reader: frames the peer
	// sent right behind the challenge may already sit in its buffer.
	return &hixieConn{raw: raw, reader: reader.R}, nil
}

func parseV00URI(uri string) (host, path string, secure bool, err error) {
	rest := uri
	switch {
	case strings.HasPrefix(rest, "wss://"):
		secure = true
		rest = strings.TrimPrefix(rest, "wss://")
	case strings.HasPrefix(rest, "ws://"):
		rest = strings.TrimPrefix(rest, "ws://")
	default:
		return "", "", false, fmt.Errorf("invalid V00 URI scheme: %s", uri)
	}
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		host, path = rest, "/"
	} else {
		host, path = rest[:idx], rest[idx:]
	}
	if !strings.Contains(host, ":") {
		if secure {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	return host, path, secure, nil
}

// generateHixieKey produces a Sec-WebSocket-KeyN value per hixie-76: a
// random number encoded with random spaces and junk characters interspersed,
// whose value divided by the number of spaces recovers a 32-bit number used
// in the challenge.
func generateHixieKey() (key string, num uint32) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // handshake obfuscation, not security
	spaces := 1 + rng.Intn(12)
	num = uint32(rng.Intn(1 << 28))
	digits := strconv.FormatUint(uint64(num)*uint64(spaces), 10)

	junk := []byte(digits)
	insertions := 1 + rng.Intn(12)
	for i := 0; i < insertions; i++ {
		pos := rng.Intn(len(junk) + 1)
		ch := byte("!#$%&'()*+-./:;<=>?@[]^_`{|}~"[rng.Intn(29)])
		junk = append(junk[:pos], append([]byte{ch}, junk[pos:]...)...)
	}
	for i := 0; i < spaces; i++ {
		pos := 1 + rng.Intn(len(junk)-1)
		junk = append(junk[:pos], append([]byte{' '}, junk[pos:]...)...)
	}
	return string(junk), num
}

func hixieChallengeResponse(num1, num2 uint32, key3 []byte) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint32(buf[0:4], num1)
	binary.BigEndian.PutUint32(buf[4:8], num2)
	copy(buf[8:], key3)
	sum := md5.Sum(buf) //nolint:gosec // hixie-76 protocol requirement
	return sum[:]
}
