package encoding

import (
	"fmt"

	"github.com/example/amqp-receive-credit/internal/buffer"
)

// DeliveryState is the tagged union of terminal and non-terminal outcomes
// carried on a disposition or transfer: Accepted, Rejected, Released,
// Modified, or a TransactionalState wrapping one of the four outcomes
// with a transaction id.
type DeliveryState interface {
	isDeliveryState()
	Marshal(wr *buffer.Buffer) error
}

// Outcome is the subset of DeliveryState that is a terminal settlement
// outcome (everything except the non-terminal "received" state, which
// this core never produces since it doesn't resume transfers).
type Outcome interface {
	DeliveryState
	isOutcome()
}

type StateAccepted struct{}

func (*StateAccepted) isDeliveryState() {}
func (*StateAccepted) isOutcome()       {}
func (s *StateAccepted) String() string { return "Accepted" }

func (s *StateAccepted) Marshal(wr *buffer.Buffer) error {
	return marshalComposite(wr, typeCodeStateAccepted)
}

func (s *StateAccepted) Unmarshal(r *buffer.Buffer) error {
	return unmarshalComposite(r, typeCodeStateAccepted, func(r *buffer.Buffer) error { return nil })
}

type StateRejected struct {
	Error *Error
}

func (*StateRejected) isDeliveryState() {}
func (*StateRejected) isOutcome()       {}
func (s *StateRejected) String() string { return fmt.Sprintf("Rejected{Error: %v}", s.Error) }

func (s *StateRejected) Marshal(wr *buffer.Buffer) error {
	return marshalComposite(wr, typeCodeStateRejected, func(wr *buffer.Buffer) error {
		if s.Error == nil {
			return omitted(wr)
		}
		return s.Error.Marshal(wr)
	})
}

func (s *StateRejected) Unmarshal(r *buffer.Buffer) error {
	return unmarshalComposite(r, typeCodeStateRejected, func(r *buffer.Buffer) error {
		if isNull(r) {
			return nil
		}
		s.Error = &Error{}
		return s.Error.Unmarshal(r)
	})
}

type StateReleased struct{}

func (*StateReleased) isDeliveryState() {}
func (*StateReleased) isOutcome()       {}
func (s *StateReleased) String() string { return "Released" }

func (s *StateReleased) Marshal(wr *buffer.Buffer) error {
	return marshalComposite(wr, typeCodeStateReleased)
}

func (s *StateReleased) Unmarshal(r *buffer.Buffer) error {
	return unmarshalComposite(r, typeCodeStateReleased, func(r *buffer.Buffer) error { return nil })
}

type StateModified struct {
	DeliveryFailed     bool
	UndeliverableHere  bool
	MessageAnnotations map[string]any
}

func (*StateModified) isDeliveryState() {}
func (*StateModified) isOutcome()       {}
func (s *StateModified) String() string {
	return fmt.Sprintf("Modified{DeliveryFailed: %t, UndeliverableHere: %t}", s.DeliveryFailed, s.UndeliverableHere)
}

func (s *StateModified) Marshal(wr *buffer.Buffer) error {
	return marshalComposite(wr, typeCodeStateModified,
		func(wr *buffer.Buffer) error { return writeBool(wr, s.DeliveryFailed) },
		func(wr *buffer.Buffer) error { return writeBool(wr, s.UndeliverableHere) },
		func(wr *buffer.Buffer) error { return writeAnnotations(wr, s.MessageAnnotations) },
	)
}

func (s *StateModified) Unmarshal(r *buffer.Buffer) error {
	return unmarshalComposite(r, typeCodeStateModified, func(r *buffer.Buffer) error {
		var err error
		if s.DeliveryFailed, err = readBool(r); err != nil {
			return err
		}
		if s.UndeliverableHere, err = readBool(r); err != nil {
			return err
		}
		if s.MessageAnnotations, err = readAnnotations(r); err != nil {
			return err
		}
		return nil
	})
}

// StateTransactional wraps an Outcome with the id of the transaction the
// disposition is scoped to. It is never itself nested (a transactional
// state's Outcome is always one of Accepted/Rejected/Released/Modified).
type StateTransactional struct {
	TxnID   []byte
	Outcome Outcome
}

func (*StateTransactional) isDeliveryState() {}
func (s *StateTransactional) String() string {
	return fmt.Sprintf("Transactional{TxnID: %x, Outcome: %v}", s.TxnID, s.Outcome)
}

func (s *StateTransactional) Marshal(wr *buffer.Buffer) error {
	return marshalComposite(wr, typeCodeStateTransactional,
		func(wr *buffer.Buffer) error { return writeBinary(wr, s.TxnID) },
		func(wr *buffer.Buffer) error {
			if s.Outcome == nil {
				return omitted(wr)
			}
			return s.Outcome.Marshal(wr)
		},
	)
}

func (s *StateTransactional) Unmarshal(r *buffer.Buffer) error {
	return unmarshalComposite(r, typeCodeStateTransactional, func(r *buffer.Buffer) error {
		var err error
		if s.TxnID, err = readBinary(r); err != nil {
			return err
		}
		if isNull(r) {
			s.Outcome = nil
			return nil
		}
		s.Outcome, err = readOutcome(r)
		return err
	})
}

// readOutcome dispatches to the concrete Outcome implementation indicated
// by the upcoming composite descriptor.
func readOutcome(r *buffer.Buffer) (Outcome, error) {
	code, err := peekCompositeCode(r)
	if err != nil {
		return nil, err
	}
	var out interface {
		Outcome
		Unmarshal(r *buffer.Buffer) error
	}
	switch code {
	case typeCodeStateAccepted:
		out = &StateAccepted{}
	case typeCodeStateRejected:
		out = &StateRejected{}
	case typeCodeStateReleased:
		out = &StateReleased{}
	case typeCodeStateModified:
		out = &StateModified{}
	default:
		return nil, fmt.Errorf("encoding: 0x%x is not a valid outcome", code)
	}
	if err := out.Unmarshal(r); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadDeliveryState dispatches to the concrete DeliveryState implementation
// indicated by the upcoming composite descriptor, including the
// transactional wrapper. Used by frame unmarshalers for transfer/
// disposition's State field.
func ReadDeliveryState(r *buffer.Buffer) (DeliveryState, error) {
	code, err := peekCompositeCode(r)
	if err != nil {
		return nil, err
	}
	if code == typeCodeStateTransactional {
		s := &StateTransactional{}
		if err := s.Unmarshal(r); err != nil {
			return nil, err
		}
		return s, nil
	}
	return readOutcome(r)
}

// UnwrapOutcome returns the inner Outcome of a DeliveryState, unwrapping a
// StateTransactional if present. It returns (nil, false) for a delivery
// state that carries no settlement outcome at all.
func UnwrapOutcome(ds DeliveryState) (Outcome, bool) {
	switch s := ds.(type) {
	case Outcome:
		return s, true
	case *StateTransactional:
		if s.Outcome == nil {
			return nil, false
		}
		return s.Outcome, true
	default:
		return nil, false
	}
}
