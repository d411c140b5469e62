package signaling

import (
	"context"
	"fmt"

	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// Peripheral is the host side of the network medium. It implements
// radio.Peripheral; each link id allocated by the server is used as the
// ConnectionID.
type Peripheral struct {
	node
	h       radio.PeripheralHandler
	service string
	reading bool
	links   map[radio.ConnectionID]*rtcLink
}

var _ radio.Peripheral = (*Peripheral)(nil)

// NewPeripheral returns a Peripheral that signals through the server at
// url (ws:// or wss://, with ?pin= when the server requires one).
func NewPeripheral(ctx context.Context, url string, opts Options) *Peripheral {
	p := &Peripheral{links: make(map[radio.ConnectionID]*rtcLink)}
	p.setup(ctx, url, opts)
	return p
}

// Initialize connects to the signaling server. OnReady follows once it
// has answered.
func (p *Peripheral) Initialize(ids radio.ServiceIDs, h radio.PeripheralHandler) error {
	p.mu.Lock()
	if err := p.connect(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.h, p.service = h, ids.Service.String()
	ws, start := p.ws, !p.reading
	p.reading = true
	p.mu.Unlock()

	if start {
		go p.readLoop(ws, p.handle, p.fail)
	}
	h.OnReady()
	return nil
}

func (p *Peripheral) IsBluetoothEnabled() bool {
	return p.online()
}

func (p *Peripheral) StartAdvertising(name string) error {
	p.mu.Lock()
	err := p.check()
	service := p.service
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if name == "" || len(name) > radio.DeviceNameMax {
		return fmt.Errorf("signaling: device name must be 1 to %d bytes", radio.DeviceNameMax)
	}
	p.send(Message{Type: MsgTypeAdvertise, Service: service, Name: name})
	return nil
}

func (p *Peripheral) StopAdvertising() {
	p.send(Message{Type: MsgTypeUnadvertise})
}

func (p *Peripheral) MaxWriteSize(radio.ConnectionID) int {
	return p.opts.maxWrite()
}

func (p *Peripheral) Write(conn radio.ConnectionID, chunk []byte) error {
	p.mu.Lock()
	l := p.links[conn]
	p.mu.Unlock()

	switch {
	case l == nil:
		return radio.ErrUnknownConnection
	case !l.announced.Load():
		return radio.ErrNotConnected
	}
	return l.write(chunk, p.opts.maxWrite())
}

// Accept tells the server conn was authenticated.
func (p *Peripheral) Accept(conn radio.ConnectionID, identity uint16) {
	p.mu.Lock()
	l := p.links[conn]
	p.mu.Unlock()
	if l != nil {
		p.send(Message{Type: MsgTypeAccept, Link: uint32(conn), Identity: identity})
	}
}

// Invalidate drops conn. Both ends receive OnDisconnect.
func (p *Peripheral) Invalidate(conn radio.ConnectionID) {
	p.drop(conn, nil, true)
}

func (p *Peripheral) Close() error {
	if !p.shutdown() {
		return nil
	}
	p.mu.Lock()
	links := p.links
	p.links = make(map[radio.ConnectionID]*rtcLink)
	p.mu.Unlock()

	for _, l := range links {
		l.tr.Close()
	}
	return nil
}

func (p *Peripheral) handle(msg Message) {
	conn := radio.ConnectionID(msg.Link)
	switch msg.Type {
	case MsgTypeIncoming:
		p.open(conn)
	case MsgTypeAnswer:
		if l := p.lookup(conn); l != nil {
			if err := l.tr.AcceptAnswer(msg.SDP); err != nil {
				util.LogWarning("signaling: link %d: %v", conn, err)
				p.drop(conn, l, true)
				return
			}
			l.remoteSet()
		}
	case MsgTypeCandidate:
		if l := p.lookup(conn); l != nil {
			l.addCandidate(msg.Candidate)
		}
	case MsgTypeClose:
		p.drop(conn, nil, false)
	case MsgTypeError:
		util.LogWarning("signaling: server rejected %s", msg.Reason)
	}
}

// open sets up the transport for a link the server allocated and sends
// the offer.
func (p *Peripheral) open(conn radio.ConnectionID) {
	l, err := p.newRTCLink(uint32(conn))
	if err != nil {
		util.LogWarning("signaling: link %d: %v", conn, err)
		p.send(Message{Type: MsgTypeClose, Link: uint32(conn)})
		return
	}

	p.mu.Lock()
	if err := p.check(); err != nil {
		p.mu.Unlock()
		l.tr.Close()
		return
	}
	p.links[conn] = l
	h := p.h
	p.mu.Unlock()

	connected := func() { h.OnConnect(conn) }
	l.tr.OnChunk(func(chunk []byte) {
		l.announce(connected)
		h.OnReceive(conn, chunk)
	})
	l.tr.OnSent(func() {
		l.sent()
		h.OnWritable(conn)
	})
	go l.watch(func() { l.announce(connected) }, func() { p.drop(conn, l, true) })

	offer, err := l.tr.CreateOffer()
	if err != nil {
		util.LogWarning("signaling: link %d: %v", conn, err)
		p.drop(conn, l, true)
		return
	}
	p.send(Message{Type: MsgTypeOffer, Link: uint32(conn), SDP: offer.SDP})
}

func (p *Peripheral) lookup(conn radio.ConnectionID) *rtcLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.links[conn]
}

// drop forgets conn if it is still bound to want (any link when want is
// nil) and reports OnDisconnect when the session knew about it.
func (p *Peripheral) drop(conn radio.ConnectionID, want *rtcLink, tellServer bool) {
	p.mu.Lock()
	l := p.links[conn]
	if l == nil || (want != nil && l != want) {
		p.mu.Unlock()
		return
	}
	delete(p.links, conn)
	h := p.h
	p.mu.Unlock()

	l.tr.Close()
	if tellServer {
		p.send(Message{Type: MsgTypeClose, Link: uint32(conn)})
	}
	util.LogDebug("signaling: link %d dropped", conn)
	if l.announced.Load() {
		h.OnDisconnect(conn)
	}
}

// fail drops every link after the server connection broke.
func (p *Peripheral) fail(err error) {
	p.mu.Lock()
	links := p.links
	p.links = make(map[radio.ConnectionID]*rtcLink)
	h := p.h
	p.mu.Unlock()

	for conn, l := range links {
		l.tr.Close()
		if l.announced.Load() {
			h.OnDisconnect(conn)
		}
	}
	h.OnFail(err)
}
