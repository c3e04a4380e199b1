package amqp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/amqp-receive-credit/internal/encoding"
	"github.com/example/amqp-receive-credit/internal/frames"
)

// ReceiverMode selects how a Receiver keeps itself supplied with link
// credit: Prefetch auto-regulates credit from a flowQueue target
// (count-based or size-based), OnDemand only ever asks for exactly what
// outstanding waiters want.
type ReceiverMode int

const (
	ReceiverModePrefetch ReceiverMode = iota
	ReceiverModeOnDemand
)

// defaultRemoteMinTimeout is the floor beginReceiveRemoteMessages applies
// to a caller-supplied timeout of zero or less. A local beginReceive
// treats the same zero-or-less value as "no overall timeout, wait until
// ctx is done" — remote receive can't afford to block indefinitely
// because the RPC carrying it still needs to return in bounded time.
const defaultRemoteMinTimeout = 10 * time.Second

// defaultDispositionTimeout bounds how long disposeMessage waits for the
// peer to acknowledge a disposition under ReceiverSettleMode second
// before giving up with a *TimeoutError.
const defaultDispositionTimeout = 60 * time.Second

// Receiver is component E: the coordinator that ties the flow queue,
// waiter list, disposition registry, and transfer assembler together
// behind a single lock, and is the only piece of this core that talks to
// the external Link.
type Receiver struct {
	mu sync.Mutex

	link Link

	mode   ReceiverMode
	flow   *flowQueue
	demand *demandCreditor

	waiters *waiterList
	asm     *assembler
	disp    *dispositionRegistry

	listener    func(Message)
	hasListener bool

	closed   bool
	closeErr error
}

// NewReceiver builds a Receiver bound to link, starting in OnDemand mode
// unless the link's negotiated settings already specify an initial credit
// target, in which case it starts in Prefetch/count mode with that target
// and sends the opening flow immediately. Call SetPrefetchCount or
// SetCacheBytes afterwards to switch strategy.
func NewReceiver(link Link) *Receiver {
	settings := link.Settings()
	r := &Receiver{
		link:    link,
		mode:    ReceiverModeOnDemand,
		flow:    newFlowQueue(CreditModeCount),
		demand:  newDemandCreditor(),
		waiters: newWaiterList(),
		asm:     newAssembler(settings.MaxMessageSize),
		disp:    newDispositionRegistry(),
	}
	if settings.TotalLinkCredit > 0 {
		r.mode = ReceiverModePrefetch
		r.flow.setCountTarget(settings.TotalLinkCredit)
	}

	r.mu.Lock()
	r.maybeIssueCreditLocked()
	r.mu.Unlock()

	return r
}

// OnAttachConfirmed applies the link's maxMessageSize to the assembler once
// the peer's attach frame confirms it, and in size mode re-runs the credit
// check. maxMessageSize itself does not enter the size-mode credit
// calculation, which uses the byte budget and the running average message
// size.
func (r *Receiver) OnAttachConfirmed(maxMessageSize uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asm.setMaxMessageSize(maxMessageSize)
	if r.mode == ReceiverModePrefetch && r.flow.mode == CreditModeSize {
		r.maybeIssueCreditLocked()
	}
}

// SetPrefetchCount switches the receiver to count-based auto-credit with a
// target of n (clamped to maxCreditPerFlow): credit is reset to the target
// whenever outstanding credit has dropped to half of it or less.
func (r *Receiver) SetPrefetchCount(n uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = ReceiverModePrefetch
	r.flow.mode = CreditModeCount
	r.flow.setCountTarget(n)
	r.maybeIssueCreditLocked()
}

// SetCacheBytes switches the receiver to size-based auto-credit, keeping
// approximately n bytes' worth of reassembled-message payload
// outstanding, estimated from a running average message size.
func (r *Receiver) SetCacheBytes(n uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = ReceiverModePrefetch
	r.flow.mode = CreditModeSize
	r.flow.setByteBudget(n)
	r.maybeIssueCreditLocked()
}

// RegisterListener switches the receiver to push mode: every reassembled
// message, including any already queued, is handed to fn off the calling
// goroutine. Only one listener may be registered at a time, and a
// listener is mutually exclusive with pull-mode beginReceive callers.
func (r *Receiver) RegisterListener(fn func(Message)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrLinkClosed
	}
	if r.hasListener {
		r.mu.Unlock()
		return ErrDuplicateListener
	}
	r.hasListener = true
	r.listener = fn

	var backlog []Message
	for r.flow.len() > 0 {
		m, _ := r.flow.dequeue()
		backlog = append(backlog, m)
	}
	r.mu.Unlock()

	for _, m := range backlog {
		go fn(m)
	}
	return nil
}

// BeginReceive pulls one batch of [min, max] messages. batchWait, once the
// first message arrives, bounds how long the waiter gives later arrivals
// to join the same batch before returning short of max; overall <= 0
// means wait until ctx is done with no additional deadline.
func (r *Receiver) BeginReceive(ctx context.Context, min, max int, batchWait, overall time.Duration) ([]Message, error) {
	return r.beginReceive(ctx, min, max, batchWait, overall, false)
}

// BeginReceiveRemoteMessages is BeginReceive for a caller proxying the
// result across a further RPC boundary: an overall <= 0 is coerced up to
// defaultRemoteMinTimeout instead of waiting unbounded, since the
// request on the other side of that boundary needs to complete in
// bounded time even if the local caller didn't specify one.
func (r *Receiver) BeginReceiveRemoteMessages(ctx context.Context, min, max int, batchWait, overall time.Duration) ([]Message, error) {
	return r.beginReceive(ctx, min, max, batchWait, overall, true)
}

func (r *Receiver) beginReceive(ctx context.Context, min, max int, batchWait, overall time.Duration, remote bool) ([]Message, error) {
	if max < min {
		max = min
	}
	if overall <= 0 && remote {
		overall = defaultRemoteMinTimeout
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, r.closedErrorLocked()
	}
	if r.hasListener {
		r.mu.Unlock()
		return nil, &IllegalStateError{Detail: "a listener is registered; beginReceive is unavailable"}
	}

	var gathered []Message
	for len(gathered) < max && r.flow.len() > 0 {
		m, _ := r.flow.dequeue()
		gathered = append(gathered, m)
	}
	if len(gathered) >= min {
		r.maybeIssueCreditLocked()
		r.mu.Unlock()
		return gathered, nil
	}

	// min/max stay the waiter's absolute targets; gathered is pre-seeded
	// into messages rather than folded into a reduced threshold, so every
	// later comparison against len(w.messages) is against the same
	// cumulative count.
	w := newWaiter(min, max, batchWait)
	w.messages = gathered
	w.seeded = len(gathered)
	node := r.waiters.enqueue(w)

	if r.mode == ReceiverModeOnDemand {
		r.demand.onWaiterAdded(uint32(max - len(gathered)))
	}
	r.maybeIssueCreditLocked()

	if overall > 0 {
		w.overallTimer = time.AfterFunc(overall, func() { r.onWaiterTimeout(w, node) })
	}
	r.mu.Unlock()

	select {
	case res := <-w.resultCh:
		return res.messages, res.err
	case <-ctx.Done():
		r.mu.Lock()
		if w.isPending() {
			r.waiters.remove(node)
			if r.mode == ReceiverModeOnDemand {
				r.demand.onWaiterRemoved(uint32(w.max - len(w.messages)))
			}
			w.tryComplete(waiterResult{messages: w.messages, err: &CancelledError{Detail: "context done"}})
		}
		r.mu.Unlock()
		res := <-w.resultCh
		return res.messages, res.err
	}
}

// onWaiterTimeout is the overall-timeout callback: it fires the waiter
// with whatever has been gathered so far, succeeding if min was reached
// and failing with a *TimeoutError otherwise.
func (r *Receiver) onWaiterTimeout(w *waiter, node *waiterNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !w.isPending() {
		return
	}
	r.waiters.remove(node)
	if r.mode == ReceiverModeOnDemand {
		r.demand.onWaiterRemoved(uint32(w.max - len(w.messages)))
	}
	if len(w.messages) >= w.min {
		w.tryComplete(waiterResult{messages: w.messages})
		return
	}
	w.tryComplete(waiterResult{messages: w.messages, err: &TimeoutError{Detail: "receive"}})
}

// onBatchTimeout is the batch-gather-timeout callback, armed once a
// waiter's first message arrives: it resolves the waiter with whatever
// has accumulated, as long as min has been met. Below min the waiter
// stays pending for further arrivals or its overall timeout.
func (r *Receiver) onBatchTimeout(w *waiter, node *waiterNode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !w.isPending() {
		return
	}
	if len(w.messages) < w.min {
		return
	}
	r.waiters.remove(node)
	if r.mode == ReceiverModeOnDemand {
		r.demand.onWaiterRemoved(uint32(w.max - len(w.messages)))
	}
	w.tryComplete(waiterResult{messages: w.messages})
}

// OnTransfer folds one transfer frame into the delivery it belongs to and
// dispatches a completed message to the listener or the oldest waiter.
func (r *Receiver) OnTransfer(t *frames.PerformTransfer) error {
	r.mu.Lock()
	msg, done, err := r.asm.addFrame(t)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if !done {
		r.mu.Unlock()
		return nil
	}
	r.onMessageLocked(*msg)
	r.mu.Unlock()
	return nil
}

func (r *Receiver) onMessageLocked(msg Message) {
	if r.mode == ReceiverModeOnDemand {
		r.demand.onDelivered(1)
	}

	if r.hasListener {
		fn := r.listener
		go fn(msg)
		r.maybeIssueCreditLocked()
		return
	}

	if w := r.waiters.front(); w != nil {
		w.messages = append(w.messages, msg)
		if len(w.messages) == w.seeded+1 {
			node := w.node
			w.armBatchTimer(func() { r.onBatchTimeout(w, node) })
		}
		if len(w.messages) >= w.max {
			node := w.node
			r.waiters.remove(node)
			if r.mode == ReceiverModeOnDemand {
				r.demand.onWaiterSatisfied()
			}
			w.tryComplete(waiterResult{messages: w.messages})
		}
		r.maybeIssueCreditLocked()
		return
	}

	r.flow.enqueue(msg)
	r.maybeIssueCreditLocked()
}

// maybeIssueCreditLocked asks the active credit strategy whether a flow
// frame is due and sends it if so. Called with r.mu held; SetTotalLinkCredit/
// IssueCredit are assumed non-blocking (the link/session base queues the
// frame for its own mux loop to send).
func (r *Receiver) maybeIssueCreditLocked() {
	if r.closed {
		return
	}
	switch r.mode {
	case ReceiverModePrefetch:
		if r.flow.saturated(r.link.LinkCredit()) {
			return
		}
		if credit, issue := r.flow.nextCredit(r.link.LinkCredit()); issue {
			_ = r.link.SetTotalLinkCredit(credit, false)
		}
	case ReceiverModeOnDemand:
		if credit, issue := r.demand.nextCredit(); issue {
			_ = r.link.IssueCredit(credit)
		}
	}
}

// AcceptMessage settles msg as Accepted.
func (r *Receiver) AcceptMessage(ctx context.Context, msg Message) error {
	return r.disposeMessage(ctx, msg, &encoding.StateAccepted{}, false)
}

// RejectMessage settles msg as Rejected, optionally carrying an error.
func (r *Receiver) RejectMessage(ctx context.Context, msg Message, rejectErr *Error) error {
	return r.disposeMessage(ctx, msg, &encoding.StateRejected{Error: rejectErr}, false)
}

// ReleaseMessage settles msg as Released, making it available for
// redelivery.
func (r *Receiver) ReleaseMessage(ctx context.Context, msg Message) error {
	return r.disposeMessage(ctx, msg, &encoding.StateReleased{}, false)
}

// ModifyMessage settles msg as Modified.
func (r *Receiver) ModifyMessage(ctx context.Context, msg Message, deliveryFailed, undeliverableHere bool, annotations map[string]any) error {
	return r.disposeMessage(ctx, msg, &encoding.StateModified{
		DeliveryFailed:     deliveryFailed,
		UndeliverableHere:  undeliverableHere,
		MessageAnnotations: annotations,
	}, false)
}

// DisposeMessageAsync settles msg with the given outcome without waiting
// for the peer's disposition reply even under ReceiverSettleMode second.
func (r *Receiver) DisposeMessageAsync(msg Message, state encoding.Outcome) error {
	return r.disposeMessage(context.Background(), msg, state, true)
}

func (r *Receiver) disposeMessage(ctx context.Context, msg Message, state encoding.Outcome, async bool) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.closedErrorLocked()
	}
	settings := r.link.Settings()
	settled := msg.Settled || settings.ReceiverSettleMode == encoding.ModeFirst

	found, err := r.link.DisposeDelivery(msg.DeliveryID, nil, settled, state, false)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if !found {
		r.mu.Unlock()
		return &NotFoundError{Detail: fmt.Sprintf("delivery-id %d", msg.DeliveryID)}
	}
	if settled || async {
		r.mu.Unlock()
		return nil
	}

	entry := r.disp.startDisposition(msg.Tag, msg.DeliveryID, defaultDispositionTimeout, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.disp.onTimeout(msg.Tag)
	})
	r.mu.Unlock()

	select {
	case err := <-entry.done:
		return err
	case <-ctx.Done():
		r.mu.Lock()
		r.disp.forget(entry)
		r.mu.Unlock()
		return &CancelledError{Detail: "waiting for peer disposition"}
	}
}

// OnDisposition folds a peer disposition frame into the disposition
// registry, resolving any caller blocked waiting for it.
func (r *Receiver) OnDisposition(d *frames.PerformDisposition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	last := d.First
	if d.Last != nil {
		last = *d.Last
	}
	for id := d.First; id <= last; id++ {
		r.disp.onPeerDisposition(id, d.State)
	}
}

// Close gracefully tears the receiver down: every message still sitting
// in the flow queue (fetched but not yet handed to the application) is
// released back to the peer, and every outstanding waiter is resolved
// with ErrLinkClosed. Call Close when the link detaches cleanly.
func (r *Receiver) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.closeErr = nil
	r.asm.setClosing(true)

	var toRelease []Message
	for r.flow.len() > 0 {
		m, _ := r.flow.dequeue()
		toRelease = append(toRelease, m)
	}
	waiters := r.waiters.snapshotAndClear()
	r.demand.reset()
	r.mu.Unlock()

	for _, m := range toRelease {
		_, _ = r.link.DisposeDelivery(m.DeliveryID, nil, m.Settled, &encoding.StateReleased{}, false)
	}
	for _, w := range waiters {
		w.tryComplete(waiterResult{messages: w.messages, err: ErrLinkClosed})
	}
	r.disp.abort(ErrLinkClosed)
	return nil
}

// Abort tears the receiver down immediately, on the assumption the
// underlying connection is already gone: unlike Close, it makes no
// attempt to send dispositions for queued-but-undelivered messages,
// since there is nowhere left to send them. Outstanding waiters and
// disposition waits are resolved with err.
func (r *Receiver) Abort(err error) {
	if err == nil {
		err = ErrLinkClosed
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.closeErr = err
	r.asm.setClosing(true)

	for r.flow.len() > 0 {
		r.flow.dequeue()
	}
	waiters := r.waiters.snapshotAndClear()
	r.demand.reset()
	r.mu.Unlock()

	for _, w := range waiters {
		w.tryComplete(waiterResult{messages: w.messages, err: err})
	}
	r.disp.abort(err)
}

func (r *Receiver) closedErrorLocked() error {
	if r.closeErr != nil {
		return r.closeErr
	}
	return ErrLinkClosed
}
