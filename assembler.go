package amqp

import (
	"github.com/example/amqp-receive-credit/internal/buffer"
	"github.com/example/amqp-receive-credit/internal/frames"
)

// assembler is component D: it reassembles one delivery's payload out of
// a sequence of transfer frames (More=true on every frame but the last),
// enforcing the link's negotiated max-message-size as bytes arrive rather
// than only once the delivery is complete. No lock of its own — guarded
// by the receiver's mutex.
type assembler struct {
	inProgress bool
	tag        DeliveryTag
	deliveryID uint32
	settled    bool
	batchable  bool
	buf        *buffer.Buffer

	maxMessageSize uint64

	// closing suppresses a size-exceeded failure into a silent drop: once
	// the link is on its way down there's no one left to report the
	// error to, and the peer is about to be told to stop sending anyway.
	closing bool
}

func newAssembler(maxMessageSize uint64) *assembler {
	return &assembler{maxMessageSize: maxMessageSize}
}

func (a *assembler) setClosing(v bool) { a.closing = v }

func (a *assembler) setMaxMessageSize(n uint64) { a.maxMessageSize = n }

// addFrame folds one transfer frame into the delivery in progress. It
// returns a completed Message once the frame with More == false arrives.
// err is non-nil only for a fatal condition: the reassembled payload grew
// past maxMessageSize while the link isn't closing. When it is closing,
// the same overflow instead resets assembler state and returns
// (nil, false, nil), silently discarding the oversized delivery.
func (a *assembler) addFrame(t *frames.PerformTransfer) (msg *Message, done bool, err error) {
	if !a.inProgress {
		a.inProgress = true
		a.tag = DeliveryTag(t.DeliveryTag)
		if t.DeliveryID != nil {
			a.deliveryID = *t.DeliveryID
		}
		a.settled = t.Settled
		a.batchable = t.Batchable
		a.buf = buffer.New(nil)
	}

	a.buf.Append(t.Payload)
	a.batchable = a.batchable && t.Batchable

	if a.maxMessageSize > 0 && uint64(a.buf.Size()) > a.maxMessageSize {
		size := uint64(a.buf.Size())
		a.reset()
		if a.closing {
			return nil, false, nil
		}
		return nil, false, &MessageSizeExceededError{Size: size, MaxSize: a.maxMessageSize}
	}

	if t.More {
		return nil, false, nil
	}

	out := &Message{
		Tag:        a.tag,
		DeliveryID: a.deliveryID,
		Settled:    a.settled,
		Batchable:  a.batchable,
		Data:       a.buf.Detach(),
	}
	a.reset()
	return out, true, nil
}

func (a *assembler) reset() {
	a.inProgress = false
	a.tag = ""
	a.deliveryID = 0
	a.settled = false
	a.batchable = false
	a.buf = nil
}
