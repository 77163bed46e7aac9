package handshake

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/anthony-cros/hookup/hookuperr"
	"github.com/anthony-cros/hookup/internal/transport"
)

func newBufReader(r io.Reader) *bufio.Reader {
	return bufio.NewReader(r)
}

// hixieConn adapts a raw hixie-76 TCP connection to transport.Conn. It only
// ever produces/accepts TextFrame: hixie-76 has no binary, ping, or pong
// frame type, and close is the TCP connection closing outright.
type hixieConn struct {
	raw    net.Conn
	reader *bufio.Reader
}

func newHixieConn(raw net.Conn) transport.Conn {
	return &hixieConn{raw: raw, reader: bufio.NewReader(raw)}
}

func (h *hixieConn) ReadFrame() (transport.FrameType, []byte, error) {
	start, err := h.reader.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	if start != 0x00 {
		return 0, nil, hookuperr.New(hookuperr.Protocol, fmt.Errorf("hixie76: unsupported frame start byte 0x%02x", start))
	}
	data, err := h.reader.ReadBytes(0xFF)
	if err != nil {
		return 0, nil, err
	}
	return transport.TextFrame, data[:len(data)-1], nil
}

func (h *hixieConn) WriteText(payload string) error {
	_, err := h.raw.Write(append(append([]byte{0x00}, payload...), 0xFF))
	return err
}

func (h *hixieConn) WriteBinary([]byte) error {
	return errors.New("hixie76: binary frames are not supported")
}

func (h *hixieConn) WritePing([]byte) error {
	return errors.New("hixie76: ping frames are not supported")
}

func (h *hixieConn) WritePong([]byte) error {
	return errors.New("hixie76: pong frames are not supported")
}

func (h *hixieConn) WriteClose(int, string) error {
	return h.raw.Close()
}

func (h *hixieConn) SetPingHandler(func(string) error) {}
func (h *hixieConn) SetPongHandler(func(string) error) {}

func (h *hixieConn) SetReadDeadline(t time.Time) error  { return h.raw.SetReadDeadline(t) }
func (h *hixieConn) SetWriteDeadline(t time.Time) error { return h.raw.SetWriteDeadline(t) }
func (h *hixieConn) Close() error                       { return h.raw.Close() }
