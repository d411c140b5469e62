package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/transport"
	"github.com/1ureka/blesock/internal/util"
)

// DefaultMaxWrite matches the largest BLE ATT write.
const DefaultMaxWrite = 512 - 3

// ErrServerLost is reported once the WebSocket to the signaling server
// breaks. The node cannot be used afterwards.
var ErrServerLost = errors.New("signaling: server connection lost")

// Options configure a Peripheral or Central.
type Options struct {
	// MaxWrite bounds a single chunk. Zero selects DefaultMaxWrite.
	MaxWrite int
	// ICEServers are STUN/TURN URLs. Nil selects transport.DefaultICEServers.
	ICEServers []string
}

func (o Options) maxWrite() int {
	if o.MaxWrite <= 0 {
		return DefaultMaxWrite
	}
	return o.MaxWrite
}

// node holds the server connection shared by Peripheral and Central.
type node struct {
	url  string
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	ws     *wsConn
	id     uint32
	closed bool
	lost   bool
}

func (n *node) setup(ctx context.Context, url string, opts Options) {
	n.url, n.opts = url, opts
	n.ctx, n.cancel = context.WithCancel(ctx)
}

// connect dials the server once. The caller holds mu.
func (n *node) connect() error {
	switch {
	case n.closed:
		return radio.ErrClosed
	case n.ws != nil:
		return nil
	}
	ws, id, err := dial(n.ctx, n.url)
	if err != nil {
		return err
	}
	n.ws, n.id = ws, id
	util.LogDebug("signaling: connected as peer %08x", id)
	return nil
}

// check reports why the node cannot act. The caller holds mu.
func (n *node) check() error {
	switch {
	case n.closed:
		return radio.ErrClosed
	case n.lost:
		return ErrServerLost
	case n.ws == nil:
		return radio.ErrNotInitialized
	}
	return nil
}

func (n *node) online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.check() == nil
}

// send writes msg to the server, ignoring errors once the node is down.
func (n *node) send(msg Message) {
	n.mu.Lock()
	ws := n.ws
	down := n.closed || n.lost
	n.mu.Unlock()
	if ws == nil || down {
		return
	}
	if err := ws.send(msg); err != nil {
		util.LogDebug("signaling: send %s: %v", msg.Type, err)
	}
}

// readLoop feeds server messages to handle until the WebSocket breaks.
// lost is called once if that happens before Close.
func (n *node) readLoop(ws *wsConn, handle func(Message), lost func(error)) {
	for {
		msg, err := ws.read()
		if err != nil {
			n.mu.Lock()
			closed := n.closed
			n.lost = true
			n.mu.Unlock()
			if !closed {
				util.LogWarning("signaling: lost server: %v", err)
				lost(errors.Join(ErrServerLost, err))
			}
			return
		}
		handle(msg)
	}
}

// shutdown closes the server connection. It reports whether this call did.
func (n *node) shutdown() bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.closed = true
	ws := n.ws
	n.mu.Unlock()

	n.cancel()
	if ws != nil {
		ws.close()
	}
	return true
}

// rtcLink is one radio link carried by a DataChannel.
type rtcLink struct {
	id uint32
	tr *transport.Link

	busy      atomic.Bool
	announced atomic.Bool
	once      sync.Once

	mu      sync.Mutex
	remote  bool
	pending []webrtc.ICECandidateInit
}

// newRTCLink creates the transport for link id and trickles local ICE
// candidates through n.
func (n *node) newRTCLink(id uint32) (*rtcLink, error) {
	tr, err := transport.NewLink(n.ctx, n.opts.ICEServers)
	if err != nil {
		return nil, err
	}
	l := &rtcLink{id: id, tr: tr}
	tr.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		n.send(Message{Type: MsgTypeCandidate, Link: id, Candidate: string(data)})
	})
	return l, nil
}

// announce runs fn the first time the link is usable.
func (l *rtcLink) announce(fn func()) {
	l.once.Do(func() {
		l.announced.Store(true)
		fn()
	})
}

// write sends one chunk. Only one may be outstanding until the transport
// reports it sent.
func (l *rtcLink) write(chunk []byte, limit int) error {
	if len(chunk) > limit {
		return radio.ErrWriteTooLarge
	}
	if !l.busy.CompareAndSwap(false, true) {
		return radio.ErrWriteInFlight
	}
	if err := l.tr.Send(chunk); err != nil {
		l.busy.Store(false)
		return errors.Join(radio.ErrNotConnected, err)
	}
	return nil
}

// sent clears the in-flight flag.
func (l *rtcLink) sent() {
	l.busy.Store(false)
}

// addCandidate applies a remote candidate, holding it back until the
// remote description is known.
func (l *rtcLink) addCandidate(raw string) {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		util.LogDebug("signaling: link %d: bad candidate: %v", l.id, err)
		return
	}
	l.mu.Lock()
	if !l.remote {
		l.pending = append(l.pending, c)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	if err := l.tr.AddICECandidate(c); err != nil {
		util.LogDebug("signaling: link %d: add candidate: %v", l.id, err)
	}
}

// remoteSet flushes candidates held back by addCandidate.
func (l *rtcLink) remoteSet() {
	l.mu.Lock()
	l.remote = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, c := range pending {
		if err := l.tr.AddICECandidate(c); err != nil {
			util.LogDebug("signaling: link %d: add candidate: %v", l.id, err)
		}
	}
}

// watch waits for the transport to open or shut down.
func (l *rtcLink) watch(ready, done func()) {
	select {
	case <-l.tr.Ready():
		ready()
	case <-l.tr.Done():
		done()
		return
	}
	<-l.tr.Done()
	done()
}
