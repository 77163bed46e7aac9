package fsm

import (
	"github.com/anthony-cros/hookup/envelope"
	"github.com/anthony-cros/hookup/internal/ratelimit"
	"github.com/anthony-cros/hookup/internal/transport"
)

// runReadLoop owns ReadFrame for one connection attempt's lifetime and never
// touches FSM state directly — every outcome (a decoded application message,
// the loop ending) is either handed to cfg.OnEvent directly or posted back
// to the run loop as an event, the same separation the teacher's
// runSignalingSession keeps between its read goroutine and its session
// state.
func (f *FSM) runReadLoop(conn transport.Conn, gen uint64) {
	for {
		ft, data, err := conn.ReadFrame()
		if err != nil {
			f.reqCh <- request{kind: evReadDone, generation: gen, err: err}
			return
		}
		if f.dispatchFrame(conn, ft, data) {
			f.reqCh <- request{kind: evReadDone, generation: gen}
			return
		}
	}
}

// dispatchFrame handles one decoded frame and reports whether the read loop
// should stop (a close frame was received).
func (f *FSM) dispatchFrame(conn transport.Conn, ft transport.FrameType, data []byte) (stop bool) {
	switch ft {
	case transport.TextFrame:
		msg := f.cfg.WireFormat.ParseInMessage(string(data))
		if !f.admit(msg) {
			return false
		}
		f.routeInMessage(conn, msg)
	case transport.BinaryFrame:
		if !f.admit(envelope.BinaryMessage{Data: data}) {
			return false
		}
		f.cfg.OnEvent(envelope.BinaryMessage{Data: data})
	case transport.CloseFrame:
		return true
	default:
		// Ping and Pong never reach here: pingpong.Watcher answers and
		// consumes them via the control-frame handlers registered on conn,
		// so ReadFrame only ever returns data frames or a close frame under
		// the gorilla-backed transport. A FrameCodec that does surface a
		// standalone continuation frame lands in this default case and is
		// logged and dropped rather than reassembled.
		f.cfg.Logger.Warn("hookup: dropping frame of unhandled type", "frame_type", int(ft))
	}
	return false
}

// routeInMessage demultiplexes a decoded application message: acks resolve
// against the registry instead of reaching the application, and an
// ack-request delivers its inner payload before the outbound Ack is sent.
func (f *FSM) routeInMessage(conn transport.Conn, msg envelope.InMessage) {
	switch v := msg.(type) {
	case envelope.Ack:
		f.ack.Resolve(v.ID)
	case envelope.AckRequest:
		f.cfg.OnEvent(v.Inner)
		f.respondAck(conn, v.ID)
	default:
		f.cfg.OnEvent(msg)
	}
}

// admit applies the configured rate limiter, if any, to everything except
// an inbound Ack: an Ack resolves an outbound send that is already in
// flight, and dropping it would turn a healthy round trip into a spurious
// ack timeout.
func (f *FSM) admit(msg envelope.InMessage) bool {
	if f.cfg.RateLimiter == nil {
		return true
	}
	if _, isAck := msg.(envelope.Ack); isAck {
		return true
	}
	return f.cfg.RateLimiter.Allow(rateLimitKind(msg))
}

func rateLimitKind(msg envelope.InMessage) ratelimit.Kind {
	switch msg.(type) {
	case envelope.JSONMessage:
		return ratelimit.KindJSON
	case envelope.BinaryMessage:
		return ratelimit.KindBinary
	case envelope.AckRequest:
		return ratelimit.KindAckRequest
	default:
		return ratelimit.KindText
	}
}

func (f *FSM) respondAck(conn transport.Conn, id envelope.AckID) {
	text, err := f.cfg.WireFormat.Render(envelope.Ack{ID: id})
	if err != nil {
		f.cfg.Logger.Warn("hookup: rendering ack response", "error", err)
		return
	}
	if err := conn.WriteText(text); err != nil {
		f.cfg.Logger.Warn("hookup: writing ack response", "error", err)
	}
}
