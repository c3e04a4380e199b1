package amqp

import "github.com/example/amqp-receive-credit/internal/encoding"

// LinkSettings is the subset of a link's negotiated attach-time state the
// credit engine needs to read.
type LinkSettings struct {
	ReceiverSettleMode encoding.ReceiverSettleMode
	MaxMessageSize     uint64

	// TotalLinkCredit is the initially negotiated credit target, if any,
	// this core should apply on construction before any explicit
	// SetPrefetchCount/SetCacheBytes call is made.
	TotalLinkCredit uint32
}

// Link is the external collaborator this core depends on for everything
// the spec places out of scope: the AMQP frame codec, transport I/O, and
// the shared link/session base that owns the connection mux loop. A
// receiver is handed a Link at construction and never reaches past it to
// the wire directly.
type Link interface {
	// SetTotalLinkCredit sets the link's outstanding credit to an
	// absolute value, used by the auto-credit flow queue (count and size
	// modes both compute a target, not an increment).
	SetTotalLinkCredit(credit uint32, drain bool) error

	// IssueCredit adds credit incrementally on top of whatever is
	// currently outstanding, used by the on-demand creditor, which
	// reasons in terms of newly arrived demand rather than a target.
	IssueCredit(credit uint32) error

	// DisposeDelivery sends a disposition frame covering [first, last]
	// (last == nil meaning last == first) with the given settlement
	// state. found reports whether the addressed delivery was known to
	// the link at all; false means the tag/delivery-id was never
	// outstanding (already settled, or never delivered), and no
	// disposition frame was sent.
	DisposeDelivery(first uint32, last *uint32, settled bool, state encoding.DeliveryState, batchable bool) (found bool, err error)

	// LinkCredit reports the link credit this side currently believes is
	// outstanding at the peer.
	LinkCredit() uint32

	// IsClosing reports whether link teardown (detach/close) has begun.
	IsClosing() bool

	// TerminalException returns the error the link closed or detached
	// with, or nil if it closed cleanly or hasn't closed at all.
	TerminalException() error

	// Settings returns the link's negotiated attach-time settings.
	Settings() LinkSettings
}
