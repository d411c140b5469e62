// Package buffer implements the growable little-endian byte buffer used to
// encode and decode control messages.
package buffer

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrBufferUnderrun is returned when a read needs more bytes than remain.
	ErrBufferUnderrun = errors.New("buffer: insufficient data")
	// ErrValueTooLarge is returned when a string does not fit its length prefix.
	ErrValueTooLarge = errors.New("buffer: value too large for length prefix")
	// ErrInvalidPosition is returned by Seek for a position outside [0, Len()].
	ErrInvalidPosition = errors.New("buffer: invalid position")
)

const (
	shortStringMax = 0xFF
	longStringMax  = 0xFFFF
	initialCap     = 64
)

// Buffer is a byte buffer with an append-only write side and a sequential
// read position. It is not safe for concurrent use.
type Buffer struct {
	data []byte
	pos  int
}

// New returns an empty Buffer with a small initial capacity.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, initialCap)}
}

// NewFrom wraps b for decoding. The buffer takes ownership of b.
func NewFrom(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns the written bytes. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes written.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the current capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Position returns the read position.
func (b *Buffer) Position() int { return b.pos }

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.pos }

// Clear resets size and read position but keeps the allocated capacity.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
	b.pos = 0
}

// Seek moves the read position.
func (b *Buffer) Seek(p int) error {
	if p < 0 || p > len(b.data) {
		return ErrInvalidPosition
	}
	b.pos = p
	return nil
}

// grow extends the buffer by n bytes, doubling capacity until it fits, and
// returns the offset of the new region.
func (b *Buffer) grow(n int) int {
	off := len(b.data)
	need := off + n
	if need <= cap(b.data) {
		b.data = b.data[:need]
		return off
	}
	newCap := max(cap(b.data), initialCap)
	for newCap < need {
		newCap *= 2
	}
	tmp := make([]byte, need, newCap)
	copy(tmp, b.data)
	b.data = tmp
	return off
}

// need consumes n bytes from the read side and returns their offset.
func (b *Buffer) need(n int) (int, error) {
	if n < 0 || b.pos+n > len(b.data) {
		return 0, ErrBufferUnderrun
	}
	off := b.pos
	b.pos += n
	return off, nil
}

// WriteU8 appends one byte.
func (b *Buffer) WriteU8(v uint8) {
	off := b.grow(1)
	b.data[off] = v
}

// WriteU16 appends v little-endian.
func (b *Buffer) WriteU16(v uint16) {
	off := b.grow(2)
	binary.LittleEndian.PutUint16(b.data[off:], v)
}

// WriteU32 appends v little-endian.
func (b *Buffer) WriteU32(v uint32) {
	off := b.grow(4)
	binary.LittleEndian.PutUint32(b.data[off:], v)
}

// WriteBool appends 1 for true and 0 for false.
func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteU8(1)
		return
	}
	b.WriteU8(0)
}

// WriteBytes appends p verbatim, without a length prefix.
func (b *Buffer) WriteBytes(p []byte) {
	off := b.grow(len(p))
	copy(b.data[off:], p)
}

// WriteShortString appends s with a one-byte length prefix. Nothing is
// written if s is longer than 255 bytes.
func (b *Buffer) WriteShortString(s string) error {
	if len(s) > shortStringMax {
		return ErrValueTooLarge
	}
	b.WriteU8(uint8(len(s)))
	off := b.grow(len(s))
	copy(b.data[off:], s)
	return nil
}

// WriteLongString appends s with a two-byte length prefix. Nothing is
// written if s is longer than 65535 bytes.
func (b *Buffer) WriteLongString(s string) error {
	if len(s) > longStringMax {
		return ErrValueTooLarge
	}
	b.WriteU16(uint16(len(s)))
	off := b.grow(len(s))
	copy(b.data[off:], s)
	return nil
}

// ReadU8 consumes one byte.
func (b *Buffer) ReadU8() (uint8, error) {
	off, err := b.need(1)
	if err != nil {
		return 0, err
	}
	return b.data[off], nil
}

// ReadU16 consumes a little-endian uint16.
func (b *Buffer) ReadU16() (uint16, error) {
	off, err := b.need(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[off:]), nil
}

// ReadU32 consumes a little-endian uint32.
func (b *Buffer) ReadU32() (uint32, error) {
	off, err := b.need(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[off:]), nil
}

// ReadBool reads one byte; any non-zero value is true.
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadU8()
	return v != 0, err
}

// ReadBytes consumes n bytes and returns a copy of them.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	off, err := b.need(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[off:off+n])
	return out, nil
}

// ReadShortString consumes a string with a one-byte length prefix.
func (b *Buffer) ReadShortString() (string, error) {
	n, err := b.ReadU8()
	if err != nil {
		return "", err
	}
	return b.readString(int(n))
}

// ReadLongString consumes a string with a two-byte length prefix.
func (b *Buffer) ReadLongString() (string, error) {
	n, err := b.ReadU16()
	if err != nil {
		return "", err
	}
	return b.readString(int(n))
}

func (b *Buffer) readString(n int) (string, error) {
	off, err := b.need(n)
	if err != nil {
		return "", err
	}
	return string(b.data[off : off+n]), nil
}
