// Package ack implements the application-level acknowledgement registry
// layered over text frames: it assigns ids to outbound ack-required
// messages, arms a per-message timeout, and resolves the send's Result when
// either the matching Ack arrives or the timer fires. The id-keyed pending
// map mirrors the teacher's wsrpc.ClientConn.methodCalls / tendermint
// request-id bookkeeping pattern, generalized from RPC call/response
// correlation to ack/timeout correlation.
package ack

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthony-cros/hookup/envelope"
)

// Outcome is delivered to a pending waiter exactly once.
type Outcome struct {
	Result envelope.Result
	Failed *envelope.AckFailed // non-nil only when Result == Cancelled
}

// FailedEmitter is invoked when an ack timer fires, so the registry's owner
// can route the AckFailed event into the application receive stream.
type FailedEmitter func(envelope.AckFailed)

// Registry correlates outbound Ackable messages with inbound Ack frames.
//
// Ids are per-connection and monotonically increasing; the registry is
// cleared (all pending timers cancelled, no AckFailed emitted for them) when
// the connection closes, since invariant 5 only requires an armed timer
// while the connection that sent it is still live.
type Registry struct {
	mu      sync.Mutex
	pending map[envelope.AckID]*entry
	nextID  uint64
	onFail  FailedEmitter
}

type entry struct {
	inner envelope.OutMessage
	timer *time.Timer
	ch    chan Outcome
}

// NewRegistry returns an empty registry. onFail is invoked (off the
// registry's lock) whenever an ack timer fires.
func NewRegistry(onFail FailedEmitter) *Registry {
	return &Registry{
		pending: make(map[envelope.AckID]*entry),
		onFail:  onFail,
	}
}

// Arm assigns a new id to inner, arms a timer for timeout, and returns the
// id plus a channel that receives exactly one Outcome.
func (r *Registry) Arm(inner envelope.OutMessage, timeout time.Duration) (envelope.AckID, <-chan Outcome) {
	id := envelope.AckID(atomic.AddUint64(&r.nextID, 1))
	ch := make(chan Outcome, 1)

	e := &entry{inner: inner, ch: ch}
	e.timer = time.AfterFunc(timeout, func() { r.fire(id) })

	r.mu.Lock()
	r.pending[id] = e
	r.mu.Unlock()

	return id, ch
}

// Resolve handles an inbound Ack(id): cancels the timer and resolves the
// send as Success. A duplicate or unknown id is ignored.
func (r *Registry) Resolve(id envelope.AckID) {
	r.mu.Lock()
	e, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	e.timer.Stop()
	e.ch <- Outcome{Result: envelope.Success}
}

func (r *Registry) fire(id envelope.AckID) {
	r.mu.Lock()
	e, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()

	if !ok {
		// Already resolved by a racing Resolve call.
		return
	}

	failed := envelope.AckFailed{Inner: e.inner}
	if r.onFail != nil {
		r.onFail(failed)
	}
	e.ch <- Outcome{Result: envelope.Cancelled, Failed: &failed}
}

// Clear cancels every pending timer and resolves each waiter as Cancelled,
// without emitting AckFailed — used when the connection closes entirely
// (registry ids stop meaning anything), as opposed to a transient drop that
// a reconnect will paper over.
func (r *Registry) Clear() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[envelope.AckID]*entry)
	r.mu.Unlock()

	for _, e := range pending {
		e.timer.Stop()
		e.ch <- Outcome{Result: envelope.Cancelled}
	}
}

// Len reports the number of currently-pending acks (test/diagnostic use).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
