// Package transport carries radio chunks over a WebRTC DataChannel.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blesock/internal/util"
)

var (
	ErrClosed = errors.New("transport: link closed")
	ErrFull   = errors.New("transport: send queue full")
)

// Link wraps a single PeerConnection + DataChannel pair, providing a
// high-level API for signaling exchange, chunk sending with backpressure,
// and chunk receiving.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded but does not
// drive open/close decisions.
type Link struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
	onSent  func()
}

// NewLink creates a Link backed by a new PeerConnection and a pre-negotiated
// DataChannel. The caller performs signaling via the exposed methods
// (CreateOffer / CreateAnswer / ...) and then uses Send / OnChunk.
//
// A nil iceServers selects DefaultICEServers; an empty non-nil slice uses
// none.
func NewLink(ctx context.Context, iceServers []string) (*Link, error) {
	if iceServers == nil {
		iceServers = DefaultICEServers
	}
	pc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	lCtx, lCancel := context.WithCancel(ctx)

	l := &Link{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		ctx:        lCtx,
		cancel:     lCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(l.openSignal) })
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		lCancel()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		l.mu.Lock()
		l.pcState = state
		l.mu.Unlock()
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			lCancel()
		}
	})

	l.sender = newSender(lCtx, dc, l.openSignal, func() {
		l.mu.RLock()
		fn := l.onSent
		l.mu.RUnlock()
		if fn != nil {
			fn()
		}
	})

	return l, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (l *Link) Ready() <-chan struct{} {
	return l.openSignal
}

// Done returns a channel that is closed when the Link is shut down
// (DataChannel closed, connection failed or parent context cancelled).
func (l *Link) Done() <-chan struct{} {
	return l.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (l *Link) Close() error {
	l.cancel()
	return errors.Join(l.dc.Close(), l.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (l *Link) ConnectionState() webrtc.PeerConnectionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer and applies it locally.
func (l *Link) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return offer, err
	}
	return offer, l.pc.SetLocalDescription(offer)
}

// AcceptOffer applies a remote offer and returns the local answer.
func (l *Link) AcceptOffer(sdp string) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return answer, err
	}
	return answer, l.pc.SetLocalDescription(answer)
}

// AcceptAnswer applies the remote answer to a previously created offer.
func (l *Link) AcceptAnswer(sdp string) error {
	return l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (l *Link) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	l.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (l *Link) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send enqueues chunk. It never blocks; chunks queued before the channel
// opens are sent once it does.
func (l *Link) Send(chunk []byte) error {
	if l.ctx.Err() != nil {
		return ErrClosed
	}
	if !l.sender.send(l.ctx, append([]byte(nil), chunk...)) {
		return ErrFull
	}
	return nil
}

// OnChunk registers a callback invoked for every inbound DataChannel
// message.
func (l *Link) OnChunk(fn func([]byte)) {
	l.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

// OnSent registers a callback invoked after each chunk passed to Send has
// been handed to the DataChannel.
func (l *Link) OnSent(fn func()) {
	l.mu.Lock()
	l.onSent = fn
	l.mu.Unlock()
}
