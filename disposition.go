package amqp

import (
	"time"

	"github.com/pkg/errors"

	"github.com/example/amqp-receive-credit/internal/encoding"
)

// dispositionEntry tracks one delivery this core is waiting on the peer to
// settle (ReceiverSettleMode second / sender-settled=false). The registry
// indexes it by both delivery-tag and delivery-id: peer dispositions,
// which address deliveries by delivery-id on the wire, are matched by id;
// timeouts are matched by tag.
type dispositionEntry struct {
	tag        DeliveryTag
	deliveryID uint32
	done       chan error
	timer      *time.Timer
}

// dispositionRegistry is component C: it remembers which deliveries are
// still awaiting peer settlement and resolves them when a disposition
// frame, a timeout, or an abort arrives. No lock of its own — guarded by
// the receiver's mutex.
type dispositionRegistry struct {
	byTag map[DeliveryTag]*dispositionEntry
	byID  map[uint32]*dispositionEntry
}

func newDispositionRegistry() *dispositionRegistry {
	return &dispositionRegistry{
		byTag: make(map[DeliveryTag]*dispositionEntry),
		byID:  make(map[uint32]*dispositionEntry),
	}
}

// startDisposition registers a wait for the peer to settle tag/deliveryID
// and arms a timeout that resolves the wait with a *TimeoutError if the
// peer never responds. onTimeout is called with no lock held (it's a
// time.AfterFunc callback), so it must take the
// receiver's lock itself before mutating registry state — that wiring is
// the receiver's responsibility, this method only returns the entry.
func (r *dispositionRegistry) startDisposition(tag DeliveryTag, deliveryID uint32, timeout time.Duration, onTimeout func()) *dispositionEntry {
	e := &dispositionEntry{
		tag:        tag,
		deliveryID: deliveryID,
		done:       make(chan error, 1),
	}
	r.byTag[tag] = e
	r.byID[deliveryID] = e
	if timeout > 0 && onTimeout != nil {
		e.timer = time.AfterFunc(timeout, onTimeout)
	}
	return e
}

func (r *dispositionRegistry) forget(e *dispositionEntry) {
	if e == nil {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(r.byTag, e.tag)
	delete(r.byID, e.deliveryID)
}

// onPeerDisposition resolves the registered wait, if any, for the
// delivery the peer's disposition addresses. It unwraps a transactional
// state to its inner outcome only to check that an outcome is present;
// the outcome itself is not passed on, and the waiting caller receives
// nil on success. A peer disposition carrying a DeliveryState that resolves to no
// outcome at all (e.g. a future non-terminal state this core doesn't
// know about) is reported as an *IllegalStateError.
func (r *dispositionRegistry) onPeerDisposition(deliveryID uint32, state encoding.DeliveryState) {
	e, ok := r.byID[deliveryID]
	if !ok {
		return
	}
	r.forget(e)

	outcome, ok := encoding.UnwrapOutcome(state)
	if !ok {
		e.done <- &IllegalStateError{Detail: "peer disposition carried no settlement outcome"}
		return
	}
	_ = outcome
	e.done <- nil
}

// onTimeout resolves the wait for tag with a *TimeoutError. Safe to call
// even if the wait was already resolved by a concurrent disposition; the
// registry no longer has an entry for it and this is a no-op.
func (r *dispositionRegistry) onTimeout(tag DeliveryTag) {
	e, ok := r.byTag[tag]
	if !ok {
		return
	}
	r.forget(e)
	// Wrapped rather than returned bare: this error crosses from the
	// timer goroutine to whatever goroutine is blocked in disposeMessage,
	// and the wrap records which delivery it was for that hop.
	e.done <- errors.Wrapf(&TimeoutError{Detail: "disposition"}, "delivery-id %d", e.deliveryID)
}

// abort resolves every outstanding wait with err — used when the link is
// closing or being torn down and no further peer frames will arrive.
func (r *dispositionRegistry) abort(err error) {
	for _, e := range r.byTag {
		if e.timer != nil {
			e.timer.Stop()
		}
		e.done <- err
	}
	r.byTag = make(map[DeliveryTag]*dispositionEntry)
	r.byID = make(map[uint32]*dispositionEntry)
}
