package amqp

import "github.com/example/amqp-receive-credit/internal/encoding"

// DeliveryTag identifies one delivery across its transfer frame(s) and its
// eventual disposition. The link/session base assigns it; this core treats
// it as an opaque comparable key.
type DeliveryTag string

// Message is one reassembled delivery: a contiguous payload built from one
// or more transfer frames, plus the bookkeeping a receiver needs to settle
// it later.
type Message struct {
	// Tag is the delivery-tag the sender assigned.
	Tag DeliveryTag

	// DeliveryID is the link-scoped sequence number the peer used on the
	// transfer(s) that carried this message, needed to address a
	// disposition back at it.
	DeliveryID uint32

	// Settled reports whether the sender already settled this delivery
	// on the transfer itself (ReceiverSettleMode first / sender-settled),
	// meaning no further disposition should be sent.
	Settled bool

	// Data is the reassembled, still-encoded message payload. Decoding it
	// into an application value is the message-body codec's job.
	Data []byte

	// Batchable is true only if every transfer of this delivery carried
	// the batchable hint; consulted when deciding whether a disposition for
	// it can be coalesced with others.
	Batchable bool
}

// Size returns the serialized byte size this message counts against the
// size-mode prefetch budget.
func (m *Message) Size() int {
	return len(m.Data)
}

// Delivery is the outcome-bearing half of settling a Message: the
// delivery-tag/id pair plus whatever terminal state the application (or a
// peer disposition) assigned it.
type Delivery struct {
	Tag        DeliveryTag
	DeliveryID uint32
	State      encoding.DeliveryState
}
