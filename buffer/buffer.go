// Package buffer implements the outbound message backup queue: messages
// written while disconnected are held in FIFO order and replayed once the
// connection reopens. The core only requires FIFO semantics and idempotent
// open/close — implementations may persist to disk; MemoryBuffer does not.
package buffer

import (
	"context"
	"sync"

	"github.com/gammazero/deque"

	"github.com/anthony-cros/hookup/envelope"
)

// Sink is the callback a drain writes entries through — typically the
// client's Send method, applied in call order.
type Sink func(ctx context.Context, msg envelope.OutMessage) (envelope.Result, error)

// Buffer is a FIFO queue of outbound messages held while disconnected.
//
// Writes are accepted in any phase; reads happen only during Drain.
// Open and Close are idempotent — calling either more than once in a row is
// a no-op, matching invariant 3 in spec.md §3 (opened/closed exactly once
// per Connecting→Open / Open→Closed transition, but implementations must
// tolerate being invoked defensively).
type Buffer interface {
	Open() error
	Close() error
	Write(msg envelope.OutMessage) error
	// Drain emits every buffered entry to sink, in FIFO order, blocking
	// until the last entry has been accepted (or ctx is cancelled).
	Drain(ctx context.Context, sink Sink) error
}

// MemoryBuffer is an in-process FIFO backed by a gammazero/deque ring
// buffer. It does not persist across process restarts.
type MemoryBuffer struct {
	mu     sync.Mutex
	queue  deque.Deque[envelope.OutMessage]
	opened bool
}

// NewMemoryBuffer returns an empty, unopened MemoryBuffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{}
}

// Open implements Buffer.
func (b *MemoryBuffer) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = true
	return nil
}

// Close implements Buffer. Any entries still queued are left in place so a
// subsequent Open/Drain cycle (a later reconnect episode) can still replay
// them.
func (b *MemoryBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = false
	return nil
}

// Write implements Buffer.
func (b *MemoryBuffer) Write(msg envelope.OutMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.PushBack(msg)
	return nil
}

// Len reports the number of entries currently queued.
func (b *MemoryBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Drain implements Buffer.
func (b *MemoryBuffer) Drain(ctx context.Context, sink Sink) error {
	for {
		msg, ok := b.popFront()
		if !ok {
			return nil
		}

		select {
		case <-ctx.Done():
			// Put the message back so it isn't lost; the next drain will
			// pick up where this one left off.
			b.pushFront(msg)
			return ctx.Err()
		default:
		}

		if _, err := sink(ctx, msg); err != nil {
			b.pushFront(msg)
			return err
		}
	}
}

func (b *MemoryBuffer) popFront() (envelope.OutMessage, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queue.Len() == 0 {
		return nil, false
	}
	return b.queue.PopFront(), true
}

func (b *MemoryBuffer) pushFront(msg envelope.OutMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue.PushFront(msg)
}
