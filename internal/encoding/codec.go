package encoding

import (
	"fmt"

	"github.com/example/amqp-receive-credit/internal/buffer"
)

// fieldWriter writes one composite field, including a null placeholder
// when the field is logically absent.
type fieldWriter func(wr *buffer.Buffer) error

// omitted marshals an explicit AMQP null, used for absent optional fields.
func omitted(wr *buffer.Buffer) error {
	wr.AppendByte(byte(typeCodeNull))
	return nil
}

// marshalComposite writes the descriptor + list8 header + fields for a
// described-list composite (the shape every AMQP performative and
// delivery-state uses).
func marshalComposite(wr *buffer.Buffer, code amqpType, fields ...fieldWriter) error {
	wr.AppendByte(0x00)
	wr.AppendByte(byte(typeCodeSmallUlong))
	wr.AppendByte(byte(code))

	if len(fields) == 0 {
		wr.AppendByte(byte(typeCodeList0))
		return nil
	}

	wr.AppendByte(byte(typeCodeList8))
	sizeAt := wr.Size()
	wr.AppendByte(0) // size placeholder, backfilled below
	wr.AppendByte(byte(len(fields)))
	bodyStart := wr.Size()

	for _, f := range fields {
		if err := f(wr); err != nil {
			return err
		}
	}

	// size covers everything from the count byte (inclusive) to the end
	bodyLen := wr.Size() - bodyStart + 1
	if bodyLen > 0xff {
		return fmt.Errorf("encoding: composite 0x%x body too large for list8 (%d bytes)", code, bodyLen)
	}
	wr.PatchByte(sizeAt, byte(bodyLen))
	return nil
}

// readCompositeHeader verifies the descriptor matches code and returns the
// number of fields present in the composite's list.
func readCompositeHeader(r *buffer.Buffer, code amqpType) (fieldCount int, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0x00 {
		return 0, fmt.Errorf("encoding: invalid composite header 0x%x", b)
	}
	descType, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	var got amqpType
	switch amqpType(descType) {
	case typeCodeSmallUlong:
		cb, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		got = amqpType(cb)
	case typeCodeUlong:
		buf, ok := r.Next(8)
		if !ok {
			return 0, fmt.Errorf("encoding: short ulong descriptor")
		}
		got = amqpType(buf[7])
	default:
		return 0, fmt.Errorf("encoding: unsupported descriptor type 0x%x", descType)
	}
	if got != code {
		return 0, fmt.Errorf("encoding: expected composite 0x%x, got 0x%x", code, got)
	}

	listType, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch amqpType(listType) {
	case typeCodeList0:
		return 0, nil
	case typeCodeList8:
		if _, ok := r.Next(1); !ok { // size, unused: fields are self-delimiting
			return 0, fmt.Errorf("encoding: short list8 size")
		}
		count, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		return int(count), nil
	case typeCodeList32:
		if _, ok := r.Next(4); !ok {
			return 0, fmt.Errorf("encoding: short list32 size")
		}
		cb, ok := r.Next(4)
		if !ok {
			return 0, fmt.Errorf("encoding: short list32 count")
		}
		count := uint32(cb[0])<<24 | uint32(cb[1])<<16 | uint32(cb[2])<<8 | uint32(cb[3])
		return int(count), nil
	default:
		return 0, fmt.Errorf("encoding: unsupported list type 0x%x", listType)
	}
}

// unmarshalComposite verifies the header and hands control to fn to read
// the fields in order. The field count from the header is not passed to
// fn, so fn always reads the full field set this package writes; a
// shorter list from another writer is not handled.
func unmarshalComposite(r *buffer.Buffer, code amqpType, fn func(r *buffer.Buffer) error) error {
	if _, err := readCompositeHeader(r, code); err != nil {
		return err
	}
	return fn(r)
}

// peekCompositeCode inspects the upcoming descriptor without consuming any
// bytes, so the caller can pick which concrete DeliveryState to unmarshal
// into before handing the buffer to its Unmarshal method.
func peekCompositeCode(r *buffer.Buffer) (amqpType, error) {
	b := r.Bytes()
	if len(b) < 2 || b[0] != 0x00 {
		return 0, fmt.Errorf("encoding: invalid composite header")
	}
	switch amqpType(b[1]) {
	case typeCodeSmallUlong:
		if len(b) < 3 {
			return 0, fmt.Errorf("encoding: short smallulong descriptor")
		}
		return amqpType(b[2]), nil
	case typeCodeUlong:
		if len(b) < 10 {
			return 0, fmt.Errorf("encoding: short ulong descriptor")
		}
		return amqpType(b[9]), nil
	default:
		return 0, fmt.Errorf("encoding: unsupported descriptor type 0x%x", b[1])
	}
}

func isNull(r *buffer.Buffer) bool {
	if b, ok := r.PeekByte(); ok && amqpType(b) == typeCodeNull {
		r.Skip(1)
		return true
	}
	return false
}

func writeBool(wr *buffer.Buffer, v bool) error {
	if v {
		wr.AppendByte(byte(typeCodeBoolTrue))
	} else {
		wr.AppendByte(byte(typeCodeBoolFalse))
	}
	return nil
}

func readBool(r *buffer.Buffer) (bool, error) {
	if isNull(r) {
		return false, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch amqpType(b) {
	case typeCodeBoolTrue:
		return true, nil
	case typeCodeBoolFalse:
		return false, nil
	default:
		return false, fmt.Errorf("encoding: invalid type for bool 0x%x", b)
	}
}

func writeUint32(wr *buffer.Buffer, v uint32) error {
	if v == 0 {
		wr.AppendByte(byte(typeCodeUint0))
		return nil
	}
	if v <= 0xff {
		wr.AppendByte(byte(typeCodeSmallUint))
		wr.AppendByte(byte(v))
		return nil
	}
	wr.AppendByte(byte(typeCodeUint))
	wr.AppendUint32(v)
	return nil
}

func readUint32(r *buffer.Buffer) (uint32, error) {
	if isNull(r) {
		return 0, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch amqpType(b) {
	case typeCodeUint0:
		return 0, nil
	case typeCodeSmallUint:
		v, err := r.ReadByte()
		return uint32(v), err
	case typeCodeUint:
		buf, ok := r.Next(4)
		if !ok {
			return 0, fmt.Errorf("encoding: short uint")
		}
		return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
	default:
		return 0, fmt.Errorf("encoding: invalid type for uint32 0x%x", b)
	}
}

func writeUint64(wr *buffer.Buffer, v uint64) error {
	wr.AppendByte(byte(typeCodeUlong))
	wr.AppendUint64(v)
	return nil
}

func readUint64(r *buffer.Buffer) (uint64, error) {
	if isNull(r) {
		return 0, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if amqpType(b) != typeCodeUlong {
		return 0, fmt.Errorf("encoding: invalid type for uint64 0x%x", b)
	}
	buf, ok := r.Next(8)
	if !ok {
		return 0, fmt.Errorf("encoding: short ulong")
	}
	var v uint64
	for _, c := range buf {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func writeString(wr *buffer.Buffer, s string) error {
	l := len(s)
	if l == 0 {
		wr.AppendByte(byte(typeCodeNull))
		return nil
	}
	if l < 256 {
		wr.AppendByte(byte(typeCodeStr8))
		wr.AppendByte(byte(l))
		wr.AppendString(s)
		return nil
	}
	wr.AppendByte(byte(typeCodeStr32))
	wr.AppendUint32(uint32(l))
	wr.AppendString(s)
	return nil
}

func readString(r *buffer.Buffer) (string, error) {
	if isNull(r) {
		return "", nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	var l int
	switch amqpType(b) {
	case typeCodeStr8:
		lb, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		l = int(lb)
	case typeCodeStr32:
		buf, ok := r.Next(4)
		if !ok {
			return "", fmt.Errorf("encoding: short str32 length")
		}
		l = int(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]))
	default:
		return "", fmt.Errorf("encoding: invalid type for string 0x%x", b)
	}
	buf, ok := r.Next(l)
	if !ok {
		return "", fmt.Errorf("encoding: short string body")
	}
	return string(buf), nil
}

func writeSymbol(wr *buffer.Buffer, s Symbol) error {
	return s.Marshal(wr)
}

func readSymbol(r *buffer.Buffer) (Symbol, error) {
	s, err := readString(r)
	return Symbol(s), err
}

// writeAnnotations encodes a restricted map8 of symbol keys to
// string/bool/uint64/nil values — the only value shapes a delivery
// annotation or modified-outcome annotation needs on this core's path.
// Full message-annotation codec (arbitrary nested described types) is the
// message-body codec's job, out of scope here.
func writeAnnotations(wr *buffer.Buffer, m map[string]any) error {
	if len(m) == 0 {
		wr.AppendByte(byte(typeCodeNull))
		return nil
	}
	wr.AppendByte(byte(typeCodeMap8))
	sizeAt := wr.Size()
	wr.AppendByte(0)
	wr.AppendByte(byte(len(m) * 2))
	bodyStart := wr.Size()
	for k, v := range m {
		if err := writeSymbol(wr, Symbol(k)); err != nil {
			return err
		}
		if err := writeAnnotationValue(wr, v); err != nil {
			return err
		}
	}
	bodyLen := wr.Size() - bodyStart + 1
	if bodyLen > 0xff {
		return fmt.Errorf("encoding: annotations map too large for map8 (%d bytes)", bodyLen)
	}
	wr.PatchByte(sizeAt, byte(bodyLen))
	return nil
}

func writeAnnotationValue(wr *buffer.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		wr.AppendByte(byte(typeCodeNull))
		return nil
	case bool:
		return writeBool(wr, val)
	case string:
		return writeString(wr, val)
	case uint64:
		return writeUint64(wr, val)
	default:
		return fmt.Errorf("encoding: unsupported annotation value type %T", v)
	}
}

func readAnnotations(r *buffer.Buffer) (map[string]any, error) {
	if isNull(r) {
		return nil, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var count int
	switch amqpType(b) {
	case typeCodeMap8:
		if _, ok := r.Next(1); !ok {
			return nil, fmt.Errorf("encoding: short map8 size")
		}
		cb, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		count = int(cb)
	case typeCodeMap32:
		if _, ok := r.Next(4); !ok {
			return nil, fmt.Errorf("encoding: short map32 size")
		}
		cb, ok := r.Next(4)
		if !ok {
			return nil, fmt.Errorf("encoding: short map32 count")
		}
		count = int(uint32(cb[0])<<24 | uint32(cb[1])<<16 | uint32(cb[2])<<8 | uint32(cb[3]))
	default:
		return nil, fmt.Errorf("encoding: invalid type for annotations map 0x%x", b)
	}
	m := make(map[string]any, count/2)
	for i := 0; i < count/2; i++ {
		k, err := readSymbol(r)
		if err != nil {
			return nil, err
		}
		v, err := readAnnotationValue(r)
		if err != nil {
			return nil, err
		}
		m[string(k)] = v
	}
	return m, nil
}

func readAnnotationValue(r *buffer.Buffer) (any, error) {
	b, ok := r.PeekByte()
	if !ok {
		return nil, fmt.Errorf("encoding: short annotation value")
	}
	switch amqpType(b) {
	case typeCodeNull:
		r.Skip(1)
		return nil, nil
	case typeCodeBoolTrue, typeCodeBoolFalse:
		return readBool(r)
	case typeCodeStr8, typeCodeStr32:
		return readString(r)
	case typeCodeUlong:
		return readUint64(r)
	default:
		return nil, fmt.Errorf("encoding: unsupported annotation value type 0x%x", b)
	}
}

func writeBinary(wr *buffer.Buffer, b []byte) error {
	l := len(b)
	if l == 0 {
		wr.AppendByte(byte(typeCodeNull))
		return nil
	}
	if l < 256 {
		wr.AppendByte(byte(typeCodeVbin8))
		wr.AppendByte(byte(l))
		wr.Append(b)
		return nil
	}
	wr.AppendByte(byte(typeCodeVbin32))
	wr.AppendUint32(uint32(l))
	wr.Append(b)
	return nil
}

func readBinary(r *buffer.Buffer) ([]byte, error) {
	if isNull(r) {
		return nil, nil
	}
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var l int
	switch amqpType(b) {
	case typeCodeVbin8:
		lb, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		l = int(lb)
	case typeCodeVbin32:
		buf, ok := r.Next(4)
		if !ok {
			return nil, fmt.Errorf("encoding: short vbin32 length")
		}
		l = int(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]))
	default:
		return nil, fmt.Errorf("encoding: invalid type for binary 0x%x", b)
	}
	buf, ok := r.Next(l)
	if !ok {
		return nil, fmt.Errorf("encoding: short binary body")
	}
	return append([]byte(nil), buf...), nil
}
