package buffer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestIntegersAreLittleEndian(t *testing.T) {
	b := New()
	b.WriteU8(0xAB)
	b.WriteU16(0x1234)
	b.WriteU32(0xDEADBEEF)
	b.WriteBool(true)
	b.WriteBool(false)

	want := []byte{0xAB, 0x34, 0x12, 0xEF, 0xBE, 0xAD, 0xDE, 0x01, 0x00}
	if !bytes.Equal(b.Bytes(), want) {
		t.Fatalf("Bytes = % x, want % x", b.Bytes(), want)
	}

	u8, _ := b.ReadU8()
	u16, _ := b.ReadU16()
	u32, _ := b.ReadU32()
	t1, _ := b.ReadBool()
	t2, err := b.ReadBool()
	if err != nil {
		t.Fatalf("ReadBool: %v", err)
	}
	if u8 != 0xAB || u16 != 0x1234 || u32 != 0xDEADBEEF || !t1 || t2 {
		t.Errorf("read back %x %x %x %v %v", u8, u16, u32, t1, t2)
	}
	if b.Remaining() != 0 {
		t.Errorf("Remaining = %d, want 0", b.Remaining())
	}
}

func TestStrings(t *testing.T) {
	b := New()
	if err := b.WriteShortString("héllo"); err != nil {
		t.Fatalf("WriteShortString: %v", err)
	}
	if err := b.WriteLongString(strings.Repeat("x", 300)); err != nil {
		t.Fatalf("WriteLongString: %v", err)
	}

	// "héllo" is 6 UTF-8 bytes.
	if b.Bytes()[0] != 6 {
		t.Errorf("short prefix = %d, want 6", b.Bytes()[0])
	}

	s, err := b.ReadShortString()
	if err != nil || s != "héllo" {
		t.Errorf("ReadShortString = %q, %v", s, err)
	}
	l, err := b.ReadLongString()
	if err != nil || len(l) != 300 {
		t.Errorf("ReadLongString len = %d, %v", len(l), err)
	}
}

func TestStringTooLongWritesNothing(t *testing.T) {
	b := New()
	if err := b.WriteShortString(strings.Repeat("a", 256)); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("err = %v, want ErrValueTooLarge", err)
	}
	if err := b.WriteLongString(strings.Repeat("a", 65536)); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("err = %v, want ErrValueTooLarge", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after rejected writes, want 0", b.Len())
	}
}

func TestUnderrun(t *testing.T) {
	b := NewFrom([]byte{0x01})
	if _, err := b.ReadU16(); !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("ReadU16 err = %v, want ErrBufferUnderrun", err)
	}

	b = NewFrom([]byte{5, 'a', 'b'})
	if _, err := b.ReadShortString(); !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("ReadShortString err = %v, want ErrBufferUnderrun", err)
	}

	b = NewFrom([]byte{1, 2, 3})
	if _, err := b.ReadBytes(4); !errors.Is(err, ErrBufferUnderrun) {
		t.Errorf("ReadBytes err = %v, want ErrBufferUnderrun", err)
	}
}

func TestGrowthDoublesAndClearKeepsCapacity(t *testing.T) {
	b := New()
	start := b.Cap()
	b.WriteBytes(make([]byte, start+1))
	if b.Cap() != start*2 {
		t.Errorf("Cap = %d, want %d", b.Cap(), start*2)
	}

	grown := b.Cap()
	b.Clear()
	if b.Len() != 0 || b.Position() != 0 {
		t.Errorf("after Clear Len=%d Position=%d", b.Len(), b.Position())
	}
	if b.Cap() != grown {
		t.Errorf("Clear changed capacity: %d -> %d", grown, b.Cap())
	}
}

func TestSeek(t *testing.T) {
	b := NewFrom([]byte{1, 2, 3})
	if err := b.Seek(2); err != nil {
		t.Fatalf("Seek(2): %v", err)
	}
	v, _ := b.ReadU8()
	if v != 3 {
		t.Errorf("ReadU8 after Seek = %d, want 3", v)
	}
	if err := b.Seek(3); err != nil {
		t.Errorf("Seek(Len) should succeed: %v", err)
	}
	if err := b.Seek(4); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("Seek(4) err = %v, want ErrInvalidPosition", err)
	}
	if err := b.Seek(-1); !errors.Is(err, ErrInvalidPosition) {
		t.Errorf("Seek(-1) err = %v, want ErrInvalidPosition", err)
	}
}

func TestReadBytesReturnsCopy(t *testing.T) {
	src := []byte{9, 8, 7}
	b := NewFrom(src)
	got, _ := b.ReadBytes(3)
	src[0] = 0
	if got[0] != 9 {
		t.Errorf("ReadBytes aliases source buffer")
	}
}
