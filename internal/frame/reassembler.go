package frame

import "encoding/binary"

// Reassembler rebuilds frames from the chunks of one connection. Chunk
// boundaries carry no meaning; any split of the stream yields the same
// frames in the same order.
//
// Reassembler is not safe for concurrent use.
type Reassembler struct {
	acc   []byte
	limit int
}

// NewReassembler returns a Reassembler bounded by BufferSize.
func NewReassembler() *Reassembler {
	return &Reassembler{limit: BufferSize}
}

// Feed consumes one chunk, including its trailing continuation byte, and
// returns every frame completed by it. Empty chunks are ignored. After an
// error the connection must be torn down.
func (r *Reassembler) Feed(chunk []byte) ([]Frame, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	data := chunk[:len(chunk)-1]
	if len(r.acc)+len(data) > r.limit {
		return nil, ErrReceiveBufferOverflow
	}
	r.acc = append(r.acc, data...)

	var frames []Frame
	off := 0
	for len(r.acc)-off >= 2 {
		length := int(binary.LittleEndian.Uint16(r.acc[off:]))
		if length > MessageSizeMax {
			return frames, ErrInvalidMessageSize
		}
		if len(r.acc)-off < HeaderSize+length {
			break
		}
		payload := make([]byte, length)
		copy(payload, r.acc[off+HeaderSize:off+HeaderSize+length])
		frames = append(frames, Frame{
			Address: binary.LittleEndian.Uint16(r.acc[off+2:]),
			Payload: payload,
		})
		off += HeaderSize + length
	}

	if off > 0 {
		rest := copy(r.acc, r.acc[off:])
		r.acc = r.acc[:rest]
	}
	return frames, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (r *Reassembler) Buffered() int { return len(r.acc) }

// Reset drops any partially received frame.
func (r *Reassembler) Reset() {
	r.acc = r.acc[:0]
}
