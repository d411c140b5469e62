package frame

import "encoding/binary"

// Outbox is the send side of one connection. It holds the pending byte
// stream and enforces a single chunk in flight: after Next hands out a
// chunk, no further chunk is produced until Ack.
//
// Outbox is not safe for concurrent use.
type Outbox struct {
	pending  []byte
	limit    int
	inFlight bool
}

// NewOutbox returns an Outbox bounded by BufferSize.
func NewOutbox() *Outbox {
	return &Outbox{limit: BufferSize}
}

// Enqueue appends one framed message to the pending stream. The payload is
// copied.
func (o *Outbox) Enqueue(address uint16, payload []byte) error {
	if len(payload) > MessageSizeMax {
		return ErrMessageTooLarge
	}
	if len(o.pending)+HeaderSize+len(payload) > o.limit {
		return ErrSendBufferOverflow
	}

	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:2], uint16(len(payload)))
	binary.LittleEndian.PutUint16(hdr[2:4], address)
	o.pending = append(o.pending, hdr[:]...)
	o.pending = append(o.pending, payload...)
	return nil
}

// Next cuts the next chunk for a link that accepts writes of up to
// maxWrite bytes. It returns false when a chunk is already in flight or
// nothing is pending.
func (o *Outbox) Next(maxWrite int) ([]byte, bool, error) {
	if maxWrite < 2 {
		return nil, false, ErrWriteSizeTooSmall
	}
	if o.inFlight || len(o.pending) == 0 {
		return nil, false, nil
	}

	n := min(maxWrite-1, len(o.pending))
	chunk := make([]byte, n+1)
	copy(chunk, o.pending[:n])

	rest := copy(o.pending, o.pending[n:])
	o.pending = o.pending[:rest]

	if len(o.pending) > 0 {
		chunk[n] = 1
	}
	o.inFlight = true
	return chunk, true, nil
}

// Ack releases the in-flight slot.
func (o *Outbox) Ack() {
	o.inFlight = false
}

// InFlight reports whether a chunk awaits acknowledgement.
func (o *Outbox) InFlight() bool { return o.inFlight }

// Pending returns the number of bytes not yet handed out.
func (o *Outbox) Pending() int { return len(o.pending) }

// Reset drops everything queued and clears the in-flight slot.
func (o *Outbox) Reset() {
	o.pending = o.pending[:0]
	o.inFlight = false
}
