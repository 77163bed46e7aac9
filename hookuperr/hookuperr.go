// Package hookuperr classifies the errors the connection lifecycle can hit
// into the kinds from the reliability design: Transport and Handshake errors
// are locally recoverable via reconnect, Protocol errors close the transport
// but may still be followed by a reconnect, Serialization errors never reach
// the caller as an error at all, and UserClose is expected and silent.
package hookuperr

import (
	"errors"
	"fmt"
)

// Kind categorizes a lifecycle error for the FSM's recovery policy.
type Kind int

const (
	// Transport covers TCP connect failures and unexpected transport closes.
	Transport Kind = iota
	// Handshake covers a non-101 upgrade response or malformed upgrade.
	Handshake
	// Protocol covers unexpected post-handshake HTTP or malformed frames.
	Protocol
	// Serialization covers a wire format parse failure (non-fatal).
	Serialization
	// AckTimeout covers an armed ack timer firing before its Ack arrived.
	AckTimeout
	// UserClose covers an expected, caller-initiated disconnect.
	UserClose
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Handshake:
		return "handshake"
	case Protocol:
		return "protocol"
	case Serialization:
		return "serialization"
	case AckTimeout:
		return "ack_timeout"
	case UserClose:
		return "user_close"
	default:
		return "unknown"
	}
}

// Error wraps a cause with the Kind the FSM should treat it as.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New wraps cause as a classified hookuperr.Error of the given kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Wrap is New with an fmt.Errorf-style message prepended to cause.
func Wrap(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// Classify returns the Kind carried by err if it is (or wraps) a
// *hookuperr.Error, and false otherwise.
func Classify(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Recoverable reports whether an error of this kind should be recovered
// locally by the reconnect loop rather than treated as a terminal close.
func (k Kind) Recoverable() bool {
	switch k {
	case Transport, Handshake, Protocol:
		return true
	default:
		return false
	}
}
