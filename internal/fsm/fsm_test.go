package fsm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthony-cros/hookup/buffer"
	"github.com/anthony-cros/hookup/envelope"
	"github.com/anthony-cros/hookup/internal/fsm"
	"github.com/anthony-cros/hookup/internal/hixietest"
	"github.com/anthony-cros/hookup/internal/wstest"
	"github.com/anthony-cros/hookup/throttle"
	"github.com/anthony-cros/hookup/wireformat"
)

type eventLog struct {
	mu     sync.Mutex
	events []envelope.InMessage
}

func (l *eventLog) record(msg envelope.InMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, msg)
}

func (l *eventLog) snapshot() []envelope.InMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]envelope.InMessage(nil), l.events...)
}

func (l *eventLog) count(pred func(envelope.InMessage) bool) int {
	n := 0
	for _, e := range l.snapshot() {
		if pred(e) {
			n++
		}
	}
	return n
}

func isConnected(e envelope.InMessage) bool    { _, ok := e.(envelope.Connected); return ok }
func isReconnecting(e envelope.InMessage) bool { _, ok := e.(envelope.Reconnecting); return ok }
func isDisconnected(e envelope.InMessage) bool { _, ok := e.(envelope.Disconnected); return ok }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true within timeout")
}

// ackRespondingHandler models a real peer: it acks any AckRequest it
// receives and otherwise echoes the frame back verbatim.
func ackRespondingHandler(conn *websocket.Conn) {
	defer conn.Close()
	f := wireformat.JSONFormat{}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if ar, ok := f.ParseInMessage(string(data)).(envelope.AckRequest); ok {
			reply, err := f.Render(envelope.Ack{ID: ar.ID})
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

type capturingHandler struct {
	mu    sync.Mutex
	texts []string
}

func (c *capturingHandler) handle(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.mu.Lock()
		c.texts = append(c.texts, string(data))
		c.mu.Unlock()
	}
}

func (c *capturingHandler) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestConnectSendDisconnect(t *testing.T) {
	peer := wstest.New()
	defer peer.Close()

	log := &eventLog{}
	f := fsm.New(fsm.Config{
		URI:     peer.URL(),
		Version: envelope.V13,
		OnEvent: log.record,
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := f.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, envelope.Success, res)
	assert.True(t, f.IsConnected(ctx))
	assert.Equal(t, fsm.Open, f.Phase())

	res, err = f.Send(ctx, envelope.TextMessage{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, envelope.Success, res)

	waitFor(t, func() bool {
		return log.count(func(e envelope.InMessage) bool {
			tm, ok := e.(envelope.TextMessage)
			return ok && tm.Text == "hello"
		}) > 0
	})

	res, err = f.Disconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, envelope.Success, res)
	assert.Equal(t, fsm.Closed, f.Phase())
	assert.Equal(t, 1, log.count(isDisconnected))
}

func TestAckedSendResolvesOnPeerAck(t *testing.T) {
	peer := wstest.New()
	defer peer.Close()
	peer.Handler = ackRespondingHandler

	f := fsm.New(fsm.Config{
		URI:     peer.URL(),
		Version: envelope.V13,
		OnEvent: func(envelope.InMessage) {},
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Connect(ctx)
	require.NoError(t, err)

	res, err := f.Send(ctx, envelope.Ackable{
		Inner:   envelope.TextMessage{Text: "need-ack"},
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, envelope.Success, res)
}

func TestUnacknowledgedSendTimesOut(t *testing.T) {
	peer := wstest.New()
	defer peer.Close()
	// A peer that swallows every frame never acks, so the ack timer must
	// fire. (An echoing peer would reflect the AckRequest, the client would
	// ack it, and the echoed Ack would resolve the send as Success.)
	peer.Handler = (&capturingHandler{}).handle

	f := fsm.New(fsm.Config{
		URI:     peer.URL(),
		Version: envelope.V13,
		OnEvent: func(envelope.InMessage) {},
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Connect(ctx)
	require.NoError(t, err)

	res, err := f.Send(ctx, envelope.Ackable{
		Inner:   envelope.TextMessage{Text: "orphan"},
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, envelope.Cancelled, res)
}

func TestAutomaticReconnectAfterConnectionDrop(t *testing.T) {
	peer := wstest.New()
	defer peer.Close()

	log := &eventLog{}
	f := fsm.New(fsm.Config{
		URI:      peer.URL(),
		Version:  envelope.V13,
		Throttle: throttle.Fixed(20*time.Millisecond, 10),
		OnEvent:  log.record,
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Connect(ctx)
	require.NoError(t, err)

	peer.CloseConns()

	waitFor(t, func() bool { return log.count(isReconnecting) >= 1 })
	waitFor(t, func() bool { return log.count(isDisconnected) >= 1 })
	waitFor(t, func() bool { return log.count(isConnected) >= 2 })
}

func TestExplicitReconnectTearsDownAndReopens(t *testing.T) {
	peer := wstest.New()
	defer peer.Close()

	log := &eventLog{}
	f := fsm.New(fsm.Config{
		URI:      peer.URL(),
		Version:  envelope.V13,
		Throttle: throttle.Fixed(10*time.Millisecond, 5),
		OnEvent:  log.record,
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.Connect(ctx)
	require.NoError(t, err)

	res, err := f.Reconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, envelope.Success, res)
	assert.Equal(t, fsm.Open, f.Phase())
	assert.GreaterOrEqual(t, log.count(isConnected), 2)
}

func TestOfflineSendIsBufferedThenReplayedOnConnect(t *testing.T) {
	peer := wstest.New()
	defer peer.Close()
	capture := &capturingHandler{}
	peer.Handler = capture.handle

	log := &eventLog{}
	f := fsm.New(fsm.Config{
		URI:     peer.URL(),
		Version: envelope.V13,
		Buffer:  buffer.NewMemoryBuffer(),
		OnEvent: log.record,
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := f.Send(ctx, envelope.TextMessage{Text: "queued"})
	require.NoError(t, err)
	assert.Equal(t, envelope.Success, res)
	assert.False(t, f.IsConnected(ctx))

	_, err = f.Connect(ctx)
	require.NoError(t, err)

	waitFor(t, func() bool { return len(capture.snapshot()) > 0 })
	assert.Contains(t, capture.snapshot()[0], "queued")
	assert.Equal(t, 1, log.count(isConnected))
}

// TestThrottleExhaustionCancelsPendingWaiters covers the reconnect-throttle
// terminal step: once the schedule runs out of attempts, any connect()
// call still waiting on the outcome of that episode must resolve Cancelled,
// never Failure, matching envelope.Cancelled's own documented coverage of
// "the throttle reached its terminal step."
func TestThrottleExhaustionCancelsPendingWaiters(t *testing.T) {
	peer := wstest.New()
	url := peer.URL()
	peer.Close() // nothing listens at url now; every dial attempt fails fast

	log := &eventLog{}
	f := fsm.New(fsm.Config{
		URI:            url,
		Version:        envelope.V13,
		ConnectTimeout: 200 * time.Millisecond,
		Throttle:       throttle.Fixed(60*time.Millisecond, 1),
		OnEvent:        log.record,
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// First attempt fails; a single fixed-throttle step remains, so this
	// call resolves as soon as the episode enters Reconnecting.
	res, err := f.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, envelope.Cancelled, res)
	assert.Equal(t, fsm.Reconnecting, f.Phase())

	// A second connect() call made while the retry is still pending joins
	// the same episode's waiters and must see its final outcome: the
	// scheduled retry's throttle step is already terminal, so it resolves
	// Cancelled rather than Failure once that retry also fails.
	res, err = f.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, envelope.Cancelled, res)
	assert.Equal(t, fsm.Closed, f.Phase())
	assert.Equal(t, 1, log.count(isDisconnected))
}

// TestHixieProtocolViolationEmitsErrorEvent covers the protocol-error
// detection path: a peer that writes a frame with an invalid hixie-76 start
// byte is classified hookuperr.Protocol, not a plain transport failure, and
// must surface as an envelope.ErrorEvent before the connection drops.
func TestHixieProtocolViolationEmitsErrorEvent(t *testing.T) {
	peer := hixietest.New()
	defer peer.Close()
	go peer.Accept(false, hixietest.SendBadFrame)

	log := &eventLog{}
	f := fsm.New(fsm.Config{
		URI:     peer.URL(),
		Version: envelope.V00,
		OnEvent: log.record,
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := f.Connect(ctx)
	require.NoError(t, err)

	waitFor(t, func() bool {
		return log.count(func(e envelope.InMessage) bool {
			_, ok := e.(envelope.ErrorEvent)
			return ok
		}) > 0
	})
}

func TestDisconnectWhileIdleIsANoop(t *testing.T) {
	f := fsm.New(fsm.Config{
		URI:     "ws://unused.invalid",
		Version: envelope.V13,
		OnEvent: func(envelope.InMessage) {},
	})
	defer f.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := f.Disconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, envelope.Success, res)
	assert.Equal(t, fsm.Closed, f.Phase())
}
