// Package frames defines the AMQP 1.0 performative bodies the receive-side
// credit engine exchanges with its link/session base: flow, transfer, and
// disposition, plus the handful of attach fields the engine reads at
// link-open time.
//
// Wire encoding and transport I/O are out of scope here: a frames value
// crosses the boundary to/from the link/session base as a plain Go value,
// the same way the base's own frame reader/writer hands composites to its
// callers. This package only needs to carry the fields this core reads or
// sets, not round-trip every field AMQP defines on these performatives —
// session-level flow control (next-incoming-id, incoming-window,
// next-outgoing-id, outgoing-window) belongs to the session base.
package frames

import (
	"fmt"

	"github.com/example/amqp-receive-credit/internal/encoding"
)

// FrameBody adds type safety to the small set of performatives this
// package carries.
type FrameBody interface {
	frameBody()
}

// PerformFlow is the link-level subset of the AMQP flow performative: it
// carries link credit and the drain/echo control bits.
//
// http://docs.oasis-open.org/amqp/core/v1.0/os/amqp-core-transport-v1.0-os.html#type-flow
type PerformFlow struct {
	Handle        *uint32
	DeliveryCount *uint32
	LinkCredit    *uint32
	Available     *uint32
	Drain         bool
	Echo          bool
}

func (*PerformFlow) frameBody() {}

func (f *PerformFlow) String() string {
	return fmt.Sprintf("Flow{Handle: %s, DeliveryCount: %s, LinkCredit: %s, Drain: %t, Echo: %t}",
		fmtU32(f.Handle), fmtU32(f.DeliveryCount), fmtU32(f.LinkCredit), f.Drain, f.Echo)
}

func fmtU32(p *uint32) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d", *p)
}

// PerformTransfer is the AMQP transfer performative: one frame's worth of
// a (possibly multi-frame) message delivery.
//
// http://docs.oasis-open.org/amqp/core/v1.0/os/amqp-core-transport-v1.0-os.html#type-transfer
type PerformTransfer struct {
	Handle      uint32
	DeliveryID  *uint32
	DeliveryTag []byte
	More        bool
	Batchable   bool
	Settled     bool
	State       encoding.DeliveryState
	Payload     []byte
}

func (*PerformTransfer) frameBody() {}

func (t *PerformTransfer) String() string {
	return fmt.Sprintf("Transfer{Handle: %d, DeliveryID: %s, DeliveryTag: %x, More: %t, Payload[size]: %d}",
		t.Handle, fmtU32(t.DeliveryID), t.DeliveryTag, t.More, len(t.Payload))
}

// PerformDisposition is the AMQP disposition performative: updates the
// state of every delivery whose delivery-id falls in [First, Last]. This
// core only ever settles deliveries one at a time, so First and Last are
// always equal on outbound dispositions; an inbound disposition from a
// batching peer may still cover a range.
//
// http://docs.oasis-open.org/amqp/core/v1.0/os/amqp-core-transport-v1.0-os.html#type-disposition
type PerformDisposition struct {
	Role      encoding.Role
	First     uint32
	Last      *uint32
	Settled   bool
	State     encoding.DeliveryState
	Batchable bool
}

func (*PerformDisposition) frameBody() {}

func (d *PerformDisposition) String() string {
	return fmt.Sprintf("Disposition{Role: %s, First: %d, Last: %s, Settled: %t, State: %v, Batchable: %t}",
		d.Role, d.First, fmtU32(d.Last), d.Settled, d.State, d.Batchable)
}

// PerformAttach carries the subset of the AMQP attach performative this
// core reads at link-open time: the negotiated maximum message size.
// Source/target/property negotiation belongs to the link/session base.
type PerformAttach struct {
	MaxMessageSize uint64
}

func (*PerformAttach) frameBody() {}
