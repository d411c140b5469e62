package transport

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blesock/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 64         // outgoing chunk channel capacity
)

// sender is a goroutine-based chunk writer that serializes all writes to a
// single DataChannel, adding open-gate and backpressure control. sent is
// called after each chunk has been handed to the channel.
type sender struct {
	inbox       chan []byte
	drainSignal chan struct{}
	sent        func()
}

// newSender creates a sender, wires the backpressure callbacks on dc, and
// starts the background loop. The loop exits when ctx is cancelled.
func newSender(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}, sent func()) *sender {
	s := &sender{
		inbox:       make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
		sent:        sent,
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	go s.loop(ctx, dc, openSignal)

	return s
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the inbox with backpressure awareness.
func (s *sender) loop(ctx context.Context, dc *webrtc.DataChannel, openSignal <-chan struct{}) {
	select {
	case <-openSignal:
	case <-ctx.Done():
		return
	}

	for {
		select {
		case chunk := <-s.inbox:
			if dc.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-s.drainSignal:
				case <-ctx.Done():
					return
				}
			}

			if err := dc.Send(chunk); err != nil {
				util.LogError("failed to send chunk (%d bytes): %v", len(chunk), err)
				return
			}
			if s.sent != nil {
				s.sent()
			}
		case <-ctx.Done():
			return
		}
	}
}

// send enqueues a chunk without blocking. It reports false when the inbox
// is full or ctx is already cancelled.
func (s *sender) send(ctx context.Context, chunk []byte) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case s.inbox <- chunk:
		return true
	default:
		return false
	}
}
