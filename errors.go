package amqp

import (
	"errors"
	"fmt"

	"github.com/example/amqp-receive-credit/internal/encoding"
)

// ErrCond is an AMQP defined error condition.
// See http://docs.oasis-open.org/amqp/core/v1.0/os/amqp-core-transport-v1.0-os.html#type-amqp-error for info on their meaning.
type ErrCond = encoding.ErrCond

// Error Conditions this core can itself raise or relay.
const (
	ErrCondInternalError         ErrCond = encoding.ErrCondInternalError
	ErrCondNotFound              ErrCond = encoding.ErrCondNotFound
	ErrCondIllegalState          ErrCond = encoding.ErrCondIllegalState
	ErrCondMessageSizeExceeded   ErrCond = encoding.ErrCondMessageSizeExceeded
	ErrCondTransferLimitExceeded ErrCond = encoding.ErrCondTransferLimitExceeded
	ErrCondDetachForced          ErrCond = encoding.ErrCondDetachForced
)

// Error is the wire shape of an AMQP error composite.
type Error = encoding.Error

// DetachError is returned by a link when a detach frame is received.
//
// RemoteError will be nil if the link was detached gracefully.
type DetachError struct {
	RemoteError *Error
}

func (e *DetachError) Error() string {
	return fmt.Sprintf("link detached, reason: %+v", e.RemoteError)
}

// Errors
var (
	// ErrSessionClosed is propagated to receivers when the session closes.
	ErrSessionClosed = errors.New("amqp: session closed")

	// ErrLinkClosed is returned by receive and disposition operations
	// once Close() or Abort() has run.
	ErrLinkClosed = errors.New("amqp: link closed")

	// ErrDuplicateListener is returned by registerListener when a
	// listener is already registered for the receiver; only one push-mode
	// listener may be active at a time, and it is mutually exclusive with
	// pull-mode beginReceive callers.
	ErrDuplicateListener = errors.New("amqp: a listener is already registered on this receiver")
)

// ConnectionError is propagated to sessions and links when the connection
// has been closed or is no longer functional.
type ConnectionError struct {
	inner error
}

func (c *ConnectionError) Error() string {
	if c.inner == nil {
		return "amqp: connection closed"
	}
	return c.inner.Error()
}

// MessageSizeExceededError is returned when a reassembled (or
// still-reassembling) message exceeds the link's negotiated
// maximum-message-size.
type MessageSizeExceededError struct {
	Size, MaxSize uint64
}

func (e *MessageSizeExceededError) Error() string {
	return fmt.Sprintf("amqp: message size (%d bytes) exceeds max allowed size (%d bytes)", e.Size, e.MaxSize)
}

// IllegalStateError is returned when an operation or peer frame is valid
// on the wire but inconsistent with this core's current state — e.g. a
// beginReceive while a listener is registered, or a peer disposition
// whose state carries no outcome (such as a transactional state with no
// wrapped outcome).
type IllegalStateError struct {
	Detail string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("amqp: illegal state: %s", e.Detail)
}

// TimeoutError is returned when a bounded wait (a receive with a timeout,
// a disposition awaiting peer settlement) expires before it is satisfied.
type TimeoutError struct {
	Detail string
}

func (e *TimeoutError) Error() string {
	if e.Detail == "" {
		return "amqp: timeout"
	}
	return fmt.Sprintf("amqp: timeout: %s", e.Detail)
}

// CancelledError is returned to a waiter whose context was cancelled
// before it was satisfied.
type CancelledError struct {
	Detail string
}

func (e *CancelledError) Error() string {
	if e.Detail == "" {
		return "amqp: cancelled"
	}
	return fmt.Sprintf("amqp: cancelled: %s", e.Detail)
}

// NotFoundError is returned when an operation references a delivery-tag
// or delivery-id this core has no record of (already settled, or never
// delivered on this link).
type NotFoundError struct {
	Detail string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("amqp: not found: %s", e.Detail)
}
