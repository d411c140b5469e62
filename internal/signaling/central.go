package signaling

import (
	"context"

	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// Central is the guest side of the network medium. It implements
// radio.Central. Discovered devices are the server's peer ids.
type Central struct {
	node
	h        radio.CentralHandler
	service  string
	reading  bool
	scanning bool
	pending  bool   // connect sent, link not allocated yet
	target   uint32 // device of the pending connect
	link     *rtcLink
	accepted bool
}

var _ radio.Central = (*Central)(nil)

// NewCentral returns a Central that signals through the server at url.
func NewCentral(ctx context.Context, url string, opts Options) *Central {
	c := &Central{}
	c.setup(ctx, url, opts)
	return c
}

func (c *Central) Initialize(ids radio.ServiceIDs, h radio.CentralHandler) error {
	c.mu.Lock()
	if err := c.connect(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.h, c.service = h, ids.Service.String()
	ws, start := c.ws, !c.reading
	c.reading = true
	c.mu.Unlock()

	if start {
		go c.readLoop(ws, c.handle, c.fail)
	}
	h.OnReady()
	return nil
}

func (c *Central) IsBluetoothEnabled() bool {
	return c.online()
}

// StartScan asks the server for current and future advertisers of the
// service.
func (c *Central) StartScan() error {
	c.mu.Lock()
	if err := c.check(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.scanning = true
	service := c.service
	c.mu.Unlock()

	c.send(Message{Type: MsgTypeScan, Service: service})
	return nil
}

func (c *Central) StopScan() {
	c.mu.Lock()
	was := c.scanning
	c.scanning = false
	c.mu.Unlock()
	if was {
		c.send(Message{Type: MsgTypeStopScan})
	}
}

// Connect asks the server for a link to device. OnConnect follows once the
// DataChannel is open, OnFail if the server refuses.
func (c *Central) Connect(device radio.DeviceID) error {
	c.mu.Lock()
	if err := c.check(); err != nil {
		c.mu.Unlock()
		return err
	}
	stale := c.link
	c.link, c.accepted = nil, false
	c.pending, c.target = true, uint32(device)
	c.scanning = false
	service := c.service
	c.mu.Unlock()

	if stale != nil {
		c.release(stale)
	}
	c.send(Message{Type: MsgTypeConnect, Service: service, Device: uint32(device)})
	return nil
}

// Disconnect closes the current link or cancels a pending connect. Only
// the peripheral is told.
func (c *Central) Disconnect() {
	c.mu.Lock()
	l := c.link
	c.link, c.accepted, c.pending = nil, false, false
	c.mu.Unlock()

	if l != nil {
		c.release(l)
	}
}

func (c *Central) MaxWriteSize() int {
	return c.opts.maxWrite()
}

func (c *Central) Write(chunk []byte) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()

	if l == nil || !l.announced.Load() {
		return radio.ErrNotConnected
	}
	return l.write(chunk, c.opts.maxWrite())
}

func (c *Central) Accept() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != nil {
		c.accepted = true
	}
}

func (c *Central) Close() error {
	c.Disconnect()
	c.shutdown()
	return nil
}

// isAccepted reports whether the current link was accepted by the session.
func (c *Central) isAccepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accepted
}

func (c *Central) handle(msg Message) {
	switch msg.Type {
	case MsgTypeDiscovered:
		c.mu.Lock()
		report := c.scanning && msg.Service == c.service
		h := c.h
		c.mu.Unlock()
		if report {
			h.OnDiscover(msg.Name, radio.DeviceID(msg.Device))
		}
	case MsgTypeLinked:
		c.open(msg.Link, msg.Device)
	case MsgTypeOffer:
		l := c.current(msg.Link)
		if l == nil {
			return
		}
		answer, err := l.tr.AcceptOffer(msg.SDP)
		if err != nil {
			util.LogWarning("signaling: link %d: %v", msg.Link, err)
			c.lose(l, true)
			return
		}
		l.remoteSet()
		c.send(Message{Type: MsgTypeAnswer, Link: msg.Link, SDP: answer.SDP})
	case MsgTypeCandidate:
		if l := c.current(msg.Link); l != nil {
			l.addCandidate(msg.Candidate)
		}
	case MsgTypeClose:
		if l := c.current(msg.Link); l != nil {
			c.lose(l, false)
		}
	case MsgTypeError:
		c.mu.Lock()
		refused := c.pending && msg.Device == c.target
		if refused {
			c.pending = false
		}
		h := c.h
		c.mu.Unlock()
		if refused {
			h.OnFail(radio.ErrUnknownDevice)
			return
		}
		util.LogWarning("signaling: server rejected %s", msg.Reason)
	}
}

// open binds the link the server allocated for the pending connect. Links
// nobody waits for are closed right away.
func (c *Central) open(id, device uint32) {
	c.mu.Lock()
	want := c.pending && device == c.target
	c.mu.Unlock()
	if !want {
		c.send(Message{Type: MsgTypeClose, Link: id})
		return
	}

	l, err := c.newRTCLink(id)
	if err != nil {
		util.LogWarning("signaling: link %d: %v", id, err)
		c.send(Message{Type: MsgTypeClose, Link: id})
		c.mu.Lock()
		c.pending = false
		h := c.h
		c.mu.Unlock()
		h.OnFail(err)
		return
	}

	c.mu.Lock()
	if !c.pending || device != c.target || c.check() != nil {
		c.mu.Unlock()
		l.tr.Close()
		c.send(Message{Type: MsgTypeClose, Link: id})
		return
	}
	c.pending = false
	c.link = l
	h := c.h
	c.mu.Unlock()

	connected := func() { h.OnConnect() }
	l.tr.OnChunk(func(chunk []byte) {
		l.announce(connected)
		h.OnReceive(chunk)
	})
	l.tr.OnSent(func() {
		l.sent()
		h.OnWritable()
	})
	go l.watch(func() { l.announce(connected) }, func() { c.lose(l, true) })
}

func (c *Central) current(id uint32) *rtcLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != nil && c.link.id == id {
		return c.link
	}
	return nil
}

// release closes l and tells the server, without notifying the session.
func (c *Central) release(l *rtcLink) {
	l.tr.Close()
	c.send(Message{Type: MsgTypeClose, Link: l.id})
}

// lose handles a link ending from the far side: OnDisconnect once it was
// announced, OnFail before that.
func (c *Central) lose(l *rtcLink, tellServer bool) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link, c.accepted = nil, false
	h := c.h
	c.mu.Unlock()

	l.tr.Close()
	if tellServer {
		c.send(Message{Type: MsgTypeClose, Link: l.id})
	}
	util.LogDebug("signaling: link %d lost", l.id)
	if l.announced.Load() {
		h.OnDisconnect()
	} else {
		h.OnFail(radio.ErrNotConnected)
	}
}

func (c *Central) fail(err error) {
	c.mu.Lock()
	l := c.link
	c.link, c.accepted, c.pending = nil, false, false
	h := c.h
	c.mu.Unlock()

	if l != nil {
		l.tr.Close()
		if l.announced.Load() {
			h.OnDisconnect()
		}
	}
	h.OnFail(err)
}
