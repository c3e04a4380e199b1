package amqp

import "github.com/example/amqp-receive-credit/internal/queue"

// CreditMode selects how a receiver auto-regulates link credit.
type CreditMode int

const (
	// CreditModeCount keeps a fixed number of messages outstanding,
	// irrespective of their size.
	CreditModeCount CreditMode = iota

	// CreditModeSize keeps a byte budget of reassembled-message payload
	// outstanding, estimating the number of messages that buys from a
	// running average message size.
	CreditModeSize
)

const (
	// maxCreditPerFlow bounds any single flow the flow queue issues (count
	// and size modes), so one low-traffic link can't claim an unbounded
	// share of peer resources. The on-demand creditor does not apply it.
	maxCreditPerFlow = 500

	// defaultAvgMessageSize seeds the size-mode average before any
	// message has been observed.
	defaultAvgMessageSize = 256 * 1024

	// lowWatermarkFraction: size-mode refills once outstanding bytes drop
	// to this fraction of the budget.
	lowWatermarkFraction = 0.50

	// highOverflowFraction: the queue is considered saturated once queued
	// bytes plus the estimated bytes of outstanding credit exceed this
	// fraction of the budget, leaving the remainder to absorb the
	// overshoot from messages larger than the running average.
	highOverflowFraction = 0.90
)

// flowQueue holds messages that have been fully reassembled but not yet
// handed to a waiter or the registered listener, and decides when more
// link credit should be requested. It has no lock of its own: every
// method is called with the receiver's single mutex held.
type flowQueue struct {
	messages *queue.Queue[Message]
	sizeBytes uint64

	mode        CreditMode
	countTarget uint32
	byteBudget  uint64
	avgMsgSize  uint64
}

func newFlowQueue(mode CreditMode) *flowQueue {
	return &flowQueue{
		messages:   queue.New[Message](16),
		mode:       mode,
		avgMsgSize: defaultAvgMessageSize,
	}
}

func (f *flowQueue) enqueue(msg Message) {
	f.observe(msg.Size())
	f.sizeBytes += uint64(msg.Size())
	f.messages.Enqueue(msg)
}

func (f *flowQueue) dequeue() (Message, bool) {
	m := f.messages.Dequeue()
	if m == nil {
		return Message{}, false
	}
	sz := uint64(m.Size())
	if sz > f.sizeBytes {
		f.sizeBytes = 0
	} else {
		f.sizeBytes -= sz
	}
	return *m, true
}

func (f *flowQueue) len() int { return f.messages.Len() }

func (f *flowQueue) bytes() uint64 { return f.sizeBytes }

// observe folds msgSize into the running average with a simple
// exponential moving average (weight 1/8 to the newest sample), so a
// handful of oversized messages don't instantly blow out the byte-mode
// credit estimate.
func (f *flowQueue) observe(msgSize int) {
	if msgSize <= 0 {
		return
	}
	f.avgMsgSize = f.avgMsgSize - f.avgMsgSize/8 + uint64(msgSize)/8
	if f.avgMsgSize == 0 {
		f.avgMsgSize = 1
	}
}

func (f *flowQueue) setCountTarget(n uint32) {
	if n > maxCreditPerFlow {
		n = maxCreditPerFlow
	}
	f.countTarget = n
}

func (f *flowQueue) setByteBudget(n uint64) {
	f.byteBudget = n
}

// nextCredit decides whether more link credit should be requested given
// currentCredit still outstanding at the peer, returning the new total
// credit to flow and whether a flow frame should actually be sent.
func (f *flowQueue) nextCredit(currentCredit uint32) (newCredit uint32, issue bool) {
	switch f.mode {
	case CreditModeCount:
		low := f.countTarget / 2
		if currentCredit > low {
			return 0, false
		}
		return f.countTarget, true

	case CreditModeSize:
		if f.byteBudget == 0 {
			return 0, false
		}
		low := uint64(float64(f.byteBudget) * lowWatermarkFraction)
		outstandingBytes := uint64(currentCredit) * f.avgMsgSize
		if outstandingBytes > low {
			return 0, false
		}
		desired := f.byteBudget / f.avgMsgSize
		if desired > maxCreditPerFlow {
			desired = maxCreditPerFlow
		}
		if desired == 0 {
			desired = 1
		}
		return uint32(desired), true

	default:
		return 0, false
	}
}

// saturated reports whether the size-mode byte budget's overflow
// allowance has been exceeded, meaning this core should stop asking for
// more credit even though currentCredit may look low, because large
// in-flight messages already outrun the average-size estimate.
func (f *flowQueue) saturated(currentCredit uint32) bool {
	if f.mode != CreditModeSize || f.byteBudget == 0 {
		return false
	}
	high := uint64(float64(f.byteBudget) * highOverflowFraction)
	return f.sizeBytes+uint64(currentCredit)*f.avgMsgSize > high
}
