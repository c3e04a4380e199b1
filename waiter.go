package amqp

import (
	"sync/atomic"
	"time"
)

// waiter status values. A waiter starts pending, and is moved to
// completing by whichever of (message arrival, batch timeout, overall
// timeout, cancellation) gets there first; the compare-and-swap in
// tryComplete ensures exactly one of them wins.
const (
	waiterPending int32 = iota
	waiterCompleting
	waiterDone
)

// waiterResult is what a waiter resolves to: the messages gathered (which
// may be fewer than requested if a timeout fired after min was reached)
// or an error if it was cancelled or timed out below min.
type waiterResult struct {
	messages []Message
	err      error
}

// waiter is one outstanding BeginReceive/BeginReceiveRemoteMessages call.
// A waiter with max == 1 is the common single-message case; max > 1
// models a batch request, gathering up to max messages before its batch
// timer or overall timer fires.
type waiter struct {
	status int32 // atomic, one of waiterPending/Completing/Done

	min int
	max int

	// seeded is how many messages were already gathered from the flow
	// queue before this waiter was enrolled; messages is pre-populated
	// with them, so both min/max stay the waiter's absolute targets and
	// comparisons against len(messages) never need to re-derive a
	// "remaining" count. The batch timer arms on the first arrival past
	// seeded, not on messages reaching length 1.
	seeded int

	messages []Message

	resultCh chan waiterResult

	overallTimer *time.Timer
	batchTimer   *time.Timer
	batchTimeout time.Duration

	node *waiterNode // back-pointer set once enlisted, for O(1) removal
}

func newWaiter(min, max int, batchTimeout time.Duration) *waiter {
	return &waiter{
		status:       waiterPending,
		min:          min,
		max:          max,
		batchTimeout: batchTimeout,
		resultCh:     make(chan waiterResult, 1),
	}
}

// tryComplete is the single entry point every completion path (arrival,
// timeout, cancellation) must go through. Only the caller that wins the
// CAS actually stops timers and sends the result; everyone else is a
// no-op, so firing timers racing a concurrent arrival never double-send.
func (w *waiter) tryComplete(result waiterResult) bool {
	if !atomic.CompareAndSwapInt32(&w.status, waiterPending, waiterCompleting) {
		return false
	}
	if w.overallTimer != nil {
		w.overallTimer.Stop()
	}
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
	atomic.StoreInt32(&w.status, waiterDone)
	w.resultCh <- result
	close(w.resultCh)
	return true
}

func (w *waiter) isPending() bool {
	return atomic.LoadInt32(&w.status) == waiterPending
}

// armBatchTimer (re-)starts the batch-gather timer once the first message
// for this waiter has arrived, giving later arrivals batchTimeout to join
// the same result before it's handed back short of max.
func (w *waiter) armBatchTimer(fire func()) {
	if w.batchTimeout <= 0 {
		return
	}
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
	w.batchTimer = time.AfterFunc(w.batchTimeout, fire)
}

// waiterNode is a doubly-linked node so a waiter can be removed from the
// middle of the list in O(1) (cancellation, abort) without scanning.
type waiterNode struct {
	w          *waiter
	prev, next *waiterNode
}

// waiterList is the FIFO of waiters blocked on beginReceive, in arrival
// order, supporting removal from anywhere in the list. Like flowQueue, it
// has no lock of its own — the receiver's mutex guards every call.
type waiterList struct {
	head, tail *waiterNode
	length     int
}

func newWaiterList() *waiterList {
	return &waiterList{}
}

func (l *waiterList) len() int { return l.length }

func (l *waiterList) enqueue(w *waiter) *waiterNode {
	n := &waiterNode{w: w}
	w.node = n
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.length++
	return n
}

// remove detaches n from the list. Safe to call more than once; the
// second call is a no-op since n is already unlinked.
func (l *waiterList) remove(n *waiterNode) {
	if n == nil || (n.prev == nil && n.next == nil && l.head != n) {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else if l.head == n {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else if l.tail == n {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.length--
}

// front returns the first waiter without removing it.
func (l *waiterList) front() *waiter {
	if l.head == nil {
		return nil
	}
	return l.head.w
}

// snapshotAndClear empties the list and returns every waiter that was in
// it, in order — used when the link closes or aborts and every
// outstanding waiter must be resolved with a terminal error.
func (l *waiterList) snapshotAndClear() []*waiter {
	out := make([]*waiter, 0, l.length)
	for n := l.head; n != nil; n = n.next {
		out = append(out, n.w)
	}
	l.head, l.tail, l.length = nil, nil, 0
	return out
}
