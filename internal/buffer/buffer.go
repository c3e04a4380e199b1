// Package buffer implements a small growable byte buffer used by the
// AMQP composite encoder/decoder. It intentionally does not wrap
// bytes.Buffer: encoding needs read-ahead (Peek/Next) and write-then-patch
// (reserve a length prefix, fill it in once the payload size is known)
// that bytes.Buffer doesn't expose directly.
package buffer

import "encoding/binary"

// Buffer is a growable byte buffer with independent read/write cursors.
type Buffer struct {
	b   []byte
	off int // read offset
}

// New creates a Buffer wrapping b. The buffer takes ownership of b.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Reset discards all buffered data and the read offset.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.off = 0
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// Bytes returns the unread portion of the buffer without consuming it.
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Detach returns the full underlying slice (ignoring the read offset) and
// clears the buffer. Used when handing a payload's backing array to a
// message that will outlive the frame that carried it.
func (b *Buffer) Detach() []byte {
	out := b.b
	b.b = nil
	b.off = 0
	return out
}

// Skip advances the read offset by n bytes.
func (b *Buffer) Skip(n int) {
	b.off += n
}

// Next returns the next n unread bytes and advances the read offset.
// ok is false if fewer than n bytes remain.
func (b *Buffer) Next(n int) (buf []byte, ok bool) {
	if n < 0 || b.Len() < n {
		return nil, false
	}
	buf = b.b[b.off : b.off+n]
	b.off += n
	return buf, true
}

// ReadByte implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	buf, ok := b.Next(1)
	if !ok {
		return 0, errEOF
	}
	return buf[0], nil
}

// PeekByte returns the next unread byte without consuming it.
func (b *Buffer) PeekByte() (byte, bool) {
	if b.Len() < 1 {
		return 0, false
	}
	return b.b[b.off], true
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

// Append appends p to the buffer.
func (b *Buffer) Append(p []byte) {
	b.b = append(b.b, p...)
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(v byte) {
	b.b = append(b.b, v)
}

// AppendString appends s without a length prefix.
func (b *Buffer) AppendString(s string) {
	b.b = append(b.b, s...)
}

// AppendUint16 appends v big-endian.
func (b *Buffer) AppendUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.b = append(b.b, tmp[:]...)
}

// AppendUint32 appends v big-endian.
func (b *Buffer) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.b = append(b.b, tmp[:]...)
}

// AppendUint64 appends v big-endian.
func (b *Buffer) AppendUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.b = append(b.b, tmp[:]...)
}

// PatchUint32 overwrites the uint32 at byte offset at with v. Used to
// backfill a composite's size field once its body has been written.
func (b *Buffer) PatchUint32(at int, v uint32) {
	binary.BigEndian.PutUint32(b.b[at:at+4], v)
}

// PatchByte overwrites the byte at offset at with v.
func (b *Buffer) PatchByte(at int, v byte) {
	b.b[at] = v
}

// Size returns the total number of bytes written to the buffer so far,
// irrespective of the read offset.
func (b *Buffer) Size() int {
	return len(b.b)
}

type bufErr string

func (e bufErr) Error() string { return string(e) }

const errEOF = bufErr("buffer: short read")
