package fsm

import (
	"context"
	"errors"
	"time"

	"github.com/anthony-cros/hookup/ack"
	"github.com/anthony-cros/hookup/envelope"
	"github.com/anthony-cros/hookup/hookuperr"
	"github.com/anthony-cros/hookup/internal/handshake"
	"github.com/anthony-cros/hookup/internal/humanize"
	"github.com/anthony-cros/hookup/internal/pingpong"
	"github.com/anthony-cros/hookup/internal/transport"
	"github.com/anthony-cros/hookup/throttle"
)

// FSM owns one connection's state and serializes every mutation of it
// through a single goroutine's select loop: public methods and background
// goroutines (the read loop, a buffer drain, a reconnect timer) all
// communicate with it by posting a request and waiting on a reply channel,
// never by touching fields directly. The ping watcher runs on its own and
// never posts to the run loop; its write errors are discarded. This is the actor
// pattern the teacher approximates with one write goroutine per connection,
// generalized here to a full state machine rather than a plain send queue.
type FSM struct {
	cfg   Config
	reqCh chan request

	stopped chan struct{}

	// Everything below is owned exclusively by run(); no other goroutine
	// may read or write these fields.
	phase              Phase
	conn               transport.Conn
	pingCancel         context.CancelFunc
	reconnectTimer     *time.Timer
	isUserClosing      bool
	reconnectAnnounced bool
	curThrottle        throttle.Throttle
	generation         uint64
	connectedAt        time.Time
	ack                *ack.Registry
	waiters            []chan replyMsg
}

type reqKind int

const (
	reqConnect reqKind = iota
	reqDisconnect
	reqReconnect
	reqSend
	reqIsConnected
	reqClose
	evAttemptDone
	evReadDone
	evReconnectFire
	evDrainDone
)

type request struct {
	kind       reqKind
	msg        envelope.OutMessage
	reply      chan replyMsg
	generation uint64
	conn       transport.Conn
	err        error
}

type replyMsg struct {
	result    envelope.Result
	err       error
	ackWait   <-chan ack.Outcome
	connected bool
}

// New builds an FSM in Idle and starts its run loop. Callers must eventually
// call Close.
func New(cfg Config) *FSM {
	cfg = cfg.withDefaults()
	f := &FSM{
		cfg:         cfg,
		reqCh:       make(chan request, 8),
		stopped:     make(chan struct{}),
		phase:       Idle,
		curThrottle: cfg.Throttle,
	}
	f.ack = ack.NewRegistry(func(failed envelope.AckFailed) {
		f.cfg.OnEvent(failed)
	})
	go f.run()
	return f
}

func (f *FSM) Phase() Phase { return f.phase }

func (f *FSM) Connect(ctx context.Context) (envelope.Result, error) {
	return f.call(ctx, reqConnect, nil)
}

func (f *FSM) Disconnect(ctx context.Context) (envelope.Result, error) {
	return f.call(ctx, reqDisconnect, nil)
}

func (f *FSM) Reconnect(ctx context.Context) (envelope.Result, error) {
	return f.call(ctx, reqReconnect, nil)
}

func (f *FSM) Send(ctx context.Context, msg envelope.OutMessage) (envelope.Result, error) {
	return f.call(ctx, reqSend, msg)
}

func (f *FSM) IsConnected(ctx context.Context) bool {
	reply := make(chan replyMsg, 1)
	select {
	case f.reqCh <- request{kind: reqIsConnected, reply: reply}:
	case <-ctx.Done():
		return false
	case <-f.stopped:
		return false
	}
	select {
	case rep := <-reply:
		return rep.connected
	case <-ctx.Done():
		return false
	}
}

// Close shuts the FSM down for good: any open connection is closed, pending
// acks are cancelled, and the run loop exits. Close waits at most
// cfg.CloseTimeout (or until ctx is done, if sooner). A closed FSM answers
// every further Connect, Disconnect, Reconnect and Send call with an error.
func (f *FSM) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.CloseTimeout)
	defer cancel()
	reply := make(chan replyMsg, 1)
	select {
	case f.reqCh <- request{kind: reqClose, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopped:
		return nil
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FSM) call(ctx context.Context, kind reqKind, msg envelope.OutMessage) (envelope.Result, error) {
	reply := make(chan replyMsg, 1)
	select {
	case f.reqCh <- request{kind: kind, msg: msg, reply: reply}:
	case <-ctx.Done():
		return envelope.Cancelled, ctx.Err()
	case <-f.stopped:
		return envelope.Failure, errors.New("hookup: connection is closed")
	}

	var rep replyMsg
	select {
	case rep = <-reply:
	case <-f.stopped:
		select {
		case rep = <-reply:
		default:
			return envelope.Failure, errors.New("hookup: connection is closed")
		}
	case <-ctx.Done():
		return envelope.Cancelled, ctx.Err()
	}
	if rep.err != nil {
		return envelope.Failure, rep.err
	}
	if rep.ackWait != nil {
		select {
		case outcome := <-rep.ackWait:
			return outcome.Result, nil
		case <-ctx.Done():
			return envelope.Cancelled, ctx.Err()
		}
	}
	return rep.result, nil
}

func (f *FSM) run() {
	for req := range f.reqCh {
		switch req.kind {
		case reqConnect:
			f.handleConnect(req)
		case reqDisconnect:
			f.handleDisconnect(req)
		case reqReconnect:
			f.handleReconnect(req)
		case reqSend:
			f.handleSend(req)
		case reqIsConnected:
			req.reply <- replyMsg{connected: f.phase == Open}
		case evAttemptDone:
			f.handleAttemptDone(req)
		case evReadDone:
			f.handleReadDone(req)
		case evReconnectFire:
			f.handleReconnectFire(req)
		case evDrainDone:
			f.handleDrainDone(req)
		case reqClose:
			f.handleClose(req)
			return
		}
	}
}

func (f *FSM) resolveWaiters(result envelope.Result, err error) {
	for _, w := range f.waiters {
		w <- replyMsg{result: result, err: err}
	}
	f.waiters = nil
}

// --- Connect / reconnect episode ---

func (f *FSM) handleConnect(req request) {
	switch f.phase {
	case Open:
		req.reply <- replyMsg{result: envelope.Success}
		return
	case Connecting, Reconnecting:
		f.waiters = append(f.waiters, req.reply)
		return
	}
	f.isUserClosing = false
	f.reconnectAnnounced = false
	f.beginAttempt(req.reply)
}

// beginAttempt starts a fresh dial-and-handshake attempt bounded by
// ConnectTimeout, regardless of any caller's own context: the 5-second (by
// default) connect budget belongs to the connection, not to whichever
// Connect call happens to be waiting on it.
func (f *FSM) beginAttempt(reply chan replyMsg) {
	f.generation++
	gen := f.generation
	f.phase = Connecting
	if reply != nil {
		f.waiters = append(f.waiters, reply)
	}

	cfg := f.cfg
	reqCh := f.reqCh
	go func() {
		attemptCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
		defer cancel()

		driver := handshake.NewDriver(cfg.Dialer)
		conn, err := driver.Perform(attemptCtx, handshake.Request{
			URI:             cfg.URI,
			Version:         cfg.Version,
			Protocols:       cfg.Protocols,
			InitialHeaders:  cfg.InitialHeaders,
			HandshakeWindow: cfg.ConnectTimeout,
		})
		reqCh <- request{kind: evAttemptDone, generation: gen, conn: conn, err: err}
	}()
}

func (f *FSM) handleAttemptDone(req request) {
	if req.generation != f.generation {
		if req.conn != nil {
			_ = req.conn.Close()
		}
		return
	}
	if req.err != nil {
		f.onAttemptFailed(req.err)
		return
	}
	f.onAttemptSucceeded(req.conn)
}

func (f *FSM) onAttemptSucceeded(conn transport.Conn) {
	conn = transport.Synchronized(conn)
	f.conn = conn
	f.phase = Open
	// current_throttle resets only on entering Open, never merely on a
	// successful dial attempt that some other transition supersedes.
	f.curThrottle = f.cfg.Throttle
	f.reconnectAnnounced = false
	f.connectedAt = time.Now()

	pingCtx, cancel := context.WithCancel(context.Background())
	f.pingCancel = cancel
	watcher := pingpong.NewWatcher(conn, f.cfg.PingInterval)
	go func() { _ = watcher.Run(pingCtx) }()

	gen := f.generation
	go f.runReadLoop(conn, gen)

	if f.cfg.Buffer == nil {
		f.resolveWaiters(envelope.Success, nil)
		f.cfg.OnEvent(envelope.Connected{})
		return
	}

	_ = f.cfg.Buffer.Open()
	buf := f.cfg.Buffer
	reqCh := f.reqCh
	send := f.Send
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		err := buf.Drain(ctx, send)
		reqCh <- request{kind: evDrainDone, generation: gen, err: err}
	}()
}

func (f *FSM) handleDrainDone(req request) {
	if req.generation != f.generation || f.phase != Open {
		return
	}
	if req.err != nil {
		f.resolveWaiters(envelope.Failure, req.err)
	} else {
		f.resolveWaiters(envelope.Success, nil)
	}
	f.cfg.OnEvent(envelope.Connected{})
}

func (f *FSM) onAttemptFailed(err error) {
	classified := classify(err)

	if f.isUserClosing {
		f.phase = Closed
		f.resolveWaiters(envelope.Cancelled, nil)
		return
	}

	delay, ok := f.curThrottle.Delay()
	if !ok {
		f.phase = Closed
		f.resolveWaiters(envelope.Cancelled, nil)
		f.cfg.OnEvent(envelope.Disconnected{Reason: classified})
		return
	}

	f.enterReconnecting()
	f.resolveWaiters(envelope.Cancelled, nil)
	f.curThrottle = f.curThrottle.Next()
	f.scheduleReconnect(delay)
}

func (f *FSM) enterReconnecting() {
	f.phase = Reconnecting
	if !f.reconnectAnnounced {
		f.reconnectAnnounced = true
		f.cfg.OnEvent(envelope.Reconnecting{})
	}
}

func (f *FSM) scheduleReconnect(delay time.Duration) {
	gen := f.generation
	reqCh := f.reqCh
	f.reconnectTimer = time.AfterFunc(delay, func() {
		reqCh <- request{kind: evReconnectFire, generation: gen}
	})
}

func (f *FSM) handleReconnectFire(req request) {
	if req.generation != f.generation || f.phase != Reconnecting {
		return
	}
	f.beginAttempt(nil)
}

// --- Explicit reconnect (ClientFacade.Reconnect) ---

func (f *FSM) handleReconnect(req request) {
	delay, ok := f.curThrottle.Delay()
	if !ok {
		req.reply <- replyMsg{result: envelope.Cancelled}
		return
	}

	f.enterReconnecting()
	f.waiters = append(f.waiters, req.reply)

	if f.conn != nil {
		_ = f.conn.WriteClose(1000, "")
		_ = f.conn.Close()
		f.conn = nil
	}
	if f.pingCancel != nil {
		f.pingCancel()
		f.pingCancel = nil
	}

	f.generation++ // invalidate any attempt or read loop from the prior episode
	f.curThrottle = f.curThrottle.Next()
	f.scheduleReconnect(delay)
}

// --- Disconnect ---

func (f *FSM) handleDisconnect(req request) {
	f.isUserClosing = true

	switch f.phase {
	case Closed:
		req.reply <- replyMsg{result: envelope.Success}
		return
	case Idle:
		f.phase = Closed
		req.reply <- replyMsg{result: envelope.Success}
		return
	case Connecting:
		f.generation++
		f.phase = Closed
		f.resolveWaiters(envelope.Cancelled, nil)
		req.reply <- replyMsg{result: envelope.Success}
		f.cfg.OnEvent(envelope.Disconnected{})
		return
	case Reconnecting:
		if f.reconnectTimer != nil {
			f.reconnectTimer.Stop()
		}
		f.generation++
		f.phase = Closed
		f.resolveWaiters(envelope.Cancelled, nil)
		req.reply <- replyMsg{result: envelope.Success}
		f.cfg.OnEvent(envelope.Disconnected{})
		return
	case Closing:
		req.reply <- replyMsg{result: envelope.Success}
		return
	}

	// Open
	f.phase = Closing
	_ = f.conn.WriteClose(1000, "")
	_ = f.conn.Close()
	if f.pingCancel != nil {
		f.pingCancel()
		f.pingCancel = nil
	}
	f.ack.Clear()
	if f.cfg.Buffer != nil {
		_ = f.cfg.Buffer.Close()
	}
	f.phase = Closed
	f.cfg.Logger.Info("hookup: connection closed", "uptime", humanize.Duration(time.Since(f.connectedAt)))
	req.reply <- replyMsg{result: envelope.Success}
	f.cfg.OnEvent(envelope.Disconnected{})
}

// --- Connection loss while Open (read error, write error, peer close) ---

func (f *FSM) onConnectionLost(err error) {
	if f.phase != Open {
		return
	}
	classified := classify(err)
	if classified.Kind == hookuperr.Protocol {
		f.cfg.OnEvent(envelope.ErrorEvent{Cause: classified})
	}
	f.cfg.Logger.Warn("hookup: connection lost", "uptime", humanize.Duration(time.Since(f.connectedAt)), "error", classified)

	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	if f.pingCancel != nil {
		f.pingCancel()
		f.pingCancel = nil
	}

	if f.isUserClosing {
		f.phase = Closed
		return
	}

	delay, ok := f.curThrottle.Delay()
	if !ok {
		f.phase = Closed
		if f.cfg.Buffer != nil {
			_ = f.cfg.Buffer.Close()
		}
		f.cfg.OnEvent(envelope.Disconnected{Reason: classified})
		return
	}

	f.enterReconnecting()
	f.cfg.OnEvent(envelope.Disconnected{Reason: classified})
	f.curThrottle = f.curThrottle.Next()
	f.scheduleReconnect(delay)
}

func (f *FSM) handleReadDone(req request) {
	if req.generation != f.generation || f.phase != Open {
		return
	}
	err := req.err
	if err == nil {
		err = errors.New("connection closed by peer")
	}
	f.onConnectionLost(err)
}

func classify(err error) *hookuperr.Error {
	if k, ok := hookuperr.Classify(err); ok {
		return hookuperr.New(k, err)
	}
	return hookuperr.New(hookuperr.Transport, err)
}

// --- Send ---

func (f *FSM) handleSend(req request) {
	if bin, ok := req.msg.(envelope.BinaryMessage); ok {
		f.handleSendBinary(req, bin)
		return
	}

	if f.phase != Open {
		if f.cfg.Buffer != nil {
			if err := f.cfg.Buffer.Write(req.msg); err != nil {
				req.reply <- replyMsg{err: err}
				return
			}
		}
		req.reply <- replyMsg{result: envelope.Success}
		return
	}

	f.handleSendOpen(req)
}

func (f *FSM) handleSendBinary(req request, bin envelope.BinaryMessage) {
	if f.phase != Open {
		if f.cfg.Buffer != nil {
			_ = f.cfg.Buffer.Write(bin)
		}
		req.reply <- replyMsg{result: envelope.Success}
		return
	}
	if err := f.conn.WriteBinary(bin.Data); err != nil {
		req.reply <- replyMsg{err: err}
		f.onConnectionLost(err)
		return
	}
	req.reply <- replyMsg{result: envelope.Success}
}

func (f *FSM) handleSendOpen(req request) {
	var wireMsg envelope.OutMessage = req.msg
	var waitCh <-chan ack.Outcome

	if ackable, ok := req.msg.(envelope.Ackable); ok {
		inner, ok := ackable.Inner.(envelope.InMessage)
		if !ok {
			req.reply <- replyMsg{err: errors.New("hookup: ack-tracked message type cannot be carried in an AckRequest")}
			return
		}
		id, ch := f.ack.Arm(ackable.Inner, ackable.Timeout)
		wireMsg = envelope.AckRequest{ID: id, Inner: inner}
		waitCh = ch
	}

	text, err := f.cfg.WireFormat.Render(wireMsg)
	if err != nil {
		req.reply <- replyMsg{err: err}
		return
	}

	if err := f.conn.WriteText(text); err != nil {
		req.reply <- replyMsg{err: err}
		f.onConnectionLost(err)
		return
	}

	req.reply <- replyMsg{result: envelope.Success, ackWait: waitCh}
}

// --- Close ---

func (f *FSM) handleClose(req request) {
	f.isUserClosing = true
	if f.reconnectTimer != nil {
		f.reconnectTimer.Stop()
	}

	if f.phase == Open {
		_ = f.conn.WriteClose(1000, "")
		_ = f.conn.Close()
	}
	if f.pingCancel != nil {
		f.pingCancel()
	}
	f.ack.Clear()
	if f.cfg.Buffer != nil {
		_ = f.cfg.Buffer.Close()
	}
	f.phase = Closed
	f.resolveWaiters(envelope.Cancelled, nil)
	close(f.stopped)
	req.reply <- replyMsg{result: envelope.Success}
}
