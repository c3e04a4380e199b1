// Package encoding implements the slice of the AMQP 1.0 type system that
// the receive-side credit engine needs to read and write on the wire:
// the handful of primitive codecs used by Flow/Transfer/Disposition
// performatives, the delivery-state tagged union, and the settlement /
// durability / expiry enumerations carried on Source and Target.
//
// General-purpose encoding of arbitrary message bodies (maps, arrays,
// described types of unbounded shape) is out of scope for this package —
// this core treats the message body as an opaque, already-serialized
// byte payload (spec: "message body codec beyond compute serialized byte
// size" is an external collaborator).
package encoding

import (
	"fmt"
	"math"

	"github.com/example/amqp-receive-credit/internal/buffer"
)

// amqpType is a subset of the AMQP primitive type codes, just enough to
// encode/decode the composites this package defines.
type amqpType uint8

const (
	typeCodeNull amqpType = 0x40

	typeCodeBoolTrue  amqpType = 0x41
	typeCodeBoolFalse amqpType = 0x42

	typeCodeUbyte     amqpType = 0x50
	typeCodeUint      amqpType = 0x70
	typeCodeSmallUint amqpType = 0x52
	typeCodeUint0     amqpType = 0x43
	typeCodeUlong     amqpType = 0x80
	typeCodeSmallUlong amqpType = 0x53

	typeCodeVbin8  amqpType = 0xa0
	typeCodeVbin32 amqpType = 0xb0
	typeCodeStr8   amqpType = 0xa1
	typeCodeStr32  amqpType = 0xb1
	typeCodeSym8   amqpType = 0xa3
	typeCodeSym32  amqpType = 0xb3

	typeCodeList0  amqpType = 0x45
	typeCodeList8  amqpType = 0xc0
	typeCodeList32 amqpType = 0xd0
	typeCodeMap8   amqpType = 0xc1
	typeCodeMap32  amqpType = 0xd1

	// composite descriptors (low byte of the amqp:*:list descriptor code)
	typeCodeError       amqpType = 0x1d
	typeCodeSource      amqpType = 0x28
	typeCodeTarget      amqpType = 0x29
	typeCodeFlow        amqpType = 0x13
	typeCodeTransfer    amqpType = 0x14
	typeCodeDisposition amqpType = 0x15

	typeCodeStateAccepted      amqpType = 0x24
	typeCodeStateRejected      amqpType = 0x25
	typeCodeStateReleased      amqpType = 0x26
	typeCodeStateModified      amqpType = 0x27
	typeCodeStateTransactional amqpType = 0x34 // vendor-reserved; transactional wrapper isn't a standard composite, this core only ever handles it in-process
)

// Role identifies which end of a link a performative describes.
type Role bool

const (
	RoleSender   Role = false
	RoleReceiver Role = true
)

func (r Role) String() string {
	if r {
		return "receiver"
	}
	return "sender"
}

// Symbol is an AMQP symbolic string.
type Symbol string

func (s Symbol) Marshal(wr *buffer.Buffer) error {
	l := len(s)
	if l < 256 {
		wr.AppendByte(byte(typeCodeSym8))
		wr.AppendByte(byte(l))
		wr.AppendString(string(s))
		return nil
	}
	if uint(l) > math.MaxUint32 {
		return fmt.Errorf("encoding: symbol too long")
	}
	wr.AppendByte(byte(typeCodeSym32))
	wr.AppendUint32(uint32(l))
	wr.AppendString(string(s))
	return nil
}

// SenderSettleMode mirrors the AMQP snd-settle-mode.
type SenderSettleMode uint8

const (
	ModeUnsettled SenderSettleMode = 0
	ModeSettled   SenderSettleMode = 1
	ModeMixed     SenderSettleMode = 2
)

// ReceiverSettleMode mirrors the AMQP rcv-settle-mode.
type ReceiverSettleMode uint8

const (
	ModeFirst  ReceiverSettleMode = 0
	ModeSecond ReceiverSettleMode = 1
)

// Durability mirrors terminus-durability.
type Durability uint32

const (
	DurabilityNone           Durability = 0
	DurabilityConfiguration  Durability = 1
	DurabilityUnsettledState Durability = 2
)

// ExpiryPolicy mirrors terminus-expiry-policy.
type ExpiryPolicy string

const (
	ExpiryLinkDetach      ExpiryPolicy = "link-detach"
	ExpirySessionEnd      ExpiryPolicy = "session-end"
	ExpiryConnectionClose ExpiryPolicy = "connection-close"
	ExpiryNever           ExpiryPolicy = "never"
)

// ErrCond is an AMQP defined error condition symbol.
type ErrCond string

const (
	ErrCondInternalError         ErrCond = "amqp:internal-error"
	ErrCondNotFound              ErrCond = "amqp:not-found"
	ErrCondIllegalState          ErrCond = "amqp:illegal-state"
	ErrCondMessageSizeExceeded   ErrCond = "amqp:link:message-size-exceeded"
	ErrCondTransferLimitExceeded ErrCond = "amqp:link:transfer-limit-exceeded"
	ErrCondDetachForced          ErrCond = "amqp:link:detach-forced"
)

// Error is the wire shape of an AMQP error composite, carried on detach,
// close, and rejected dispositions.
type Error struct {
	Condition   ErrCond
	Description string
	Info        map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Condition, e.Description)
	}
	return string(e.Condition)
}

func (e *Error) Marshal(wr *buffer.Buffer) error {
	return marshalComposite(wr, typeCodeError, func(wr *buffer.Buffer) error {
		if err := writeSymbol(wr, Symbol(e.Condition)); err != nil {
			return err
		}
		return writeString(wr, e.Description)
	})
}

func (e *Error) Unmarshal(r *buffer.Buffer) error {
	return unmarshalComposite(r, typeCodeError, func(r *buffer.Buffer) error {
		cond, err := readSymbol(r)
		if err != nil {
			return err
		}
		e.Condition = ErrCond(cond)
		desc, err := readString(r)
		if err != nil {
			return err
		}
		e.Description = desc
		return nil
	})
}
