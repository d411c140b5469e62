// Package frame splits application messages into link-sized chunks and
// reassembles them on the other side.
//
// A message travels as [length u16 LE][address u16 LE][payload] inside a
// contiguous byte stream. The stream is cut into chunks of at most
// maxWrite-1 bytes and every chunk carries one trailing continuation byte.
package frame

import "errors"

const (
	// MessageSizeMax is the largest payload a single frame may carry.
	MessageSizeMax = 4096
	// BufferSize bounds both the pending send stream and the receive
	// accumulator of a connection.
	BufferSize = 8192
	// HeaderSize is the length and address prefix of every frame.
	HeaderSize = 4
)

var (
	ErrMessageTooLarge       = errors.New("frame: message exceeds maximum size")
	ErrSendBufferOverflow    = errors.New("frame: send buffer overflow")
	ErrReceiveBufferOverflow = errors.New("frame: receive buffer overflow")
	ErrInvalidMessageSize    = errors.New("frame: invalid message size")
	ErrWriteSizeTooSmall     = errors.New("frame: write size must be at least 2")
)

// Frame is one reassembled message.
type Frame struct {
	Address uint16
	Payload []byte
}

// More reports the continuation flag of a received chunk: true when the
// sender still had buffered bytes after writing it.
func More(chunk []byte) bool {
	return len(chunk) > 0 && chunk[len(chunk)-1] != 0
}
