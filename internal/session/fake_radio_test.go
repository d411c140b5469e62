package session

import (
	"github.com/1ureka/blesock/internal/frame"
	"github.com/1ureka/blesock/internal/loop"
	"github.com/1ureka/blesock/internal/protocol"
	"github.com/1ureka/blesock/internal/radio"
)

// testNet is a synchronous in-memory link shared by one fake peripheral and
// any number of fake centrals. Link events are handed to the session
// handlers immediately; the handlers only post to q, so every test drives
// the whole network by calling q.RunPending.
type testNet struct {
	q        *loop.Queue
	maxWrite int
	host     *fakePeripheral
	nextConn radio.ConnectionID
}

func newTestNet() *testNet {
	n := &testNet{q: &loop.Queue{}, maxWrite: 20}
	n.host = &fakePeripheral{
		net:      n,
		links:    make(map[radio.ConnectionID]*fakeCentral),
		accepted: make(map[radio.ConnectionID]uint16),
		enabled:  true,
	}
	return n
}

func (n *testNet) newCentral() *fakeCentral {
	return &fakeCentral{net: n, enabled: true}
}

func (n *testNet) run() int { return n.q.RunPending() }

// fakePeripheral implements radio.Peripheral.
type fakePeripheral struct {
	net         *testNet
	h           radio.PeripheralHandler
	ids         radio.ServiceIDs
	enabled     bool
	advertising string
	links       map[radio.ConnectionID]*fakeCentral
	accepted    map[radio.ConnectionID]uint16
	invalidated []radio.ConnectionID
	closed      bool
}

func (p *fakePeripheral) Initialize(ids radio.ServiceIDs, h radio.PeripheralHandler) error {
	p.ids, p.h = ids, h
	if !p.enabled {
		h.OnBluetoothRequire()
		return nil
	}
	h.OnReady()
	return nil
}

func (p *fakePeripheral) IsBluetoothEnabled() bool { return p.enabled }

func (p *fakePeripheral) StartAdvertising(name string) error {
	p.advertising = name
	return nil
}

func (p *fakePeripheral) StopAdvertising() { p.advertising = "" }

func (p *fakePeripheral) MaxWriteSize(radio.ConnectionID) int { return p.net.maxWrite }

func (p *fakePeripheral) Write(conn radio.ConnectionID, chunk []byte) error {
	c := p.links[conn]
	if c == nil {
		return radio.ErrUnknownConnection
	}
	if len(chunk) > p.net.maxWrite {
		return radio.ErrWriteTooLarge
	}
	c.h.OnReceive(append([]byte(nil), chunk...))
	if c.holdAcks {
		c.held++
		return nil
	}
	p.h.OnWritable(conn)
	return nil
}

func (p *fakePeripheral) Accept(conn radio.ConnectionID, identity uint16) {
	p.accepted[conn] = identity
}

func (p *fakePeripheral) Invalidate(conn radio.ConnectionID) {
	p.invalidated = append(p.invalidated, conn)
	c := p.links[conn]
	if c == nil {
		return
	}
	delete(p.links, conn)
	c.peer, c.conn = nil, 0
	c.h.OnDisconnect()
	p.h.OnDisconnect(conn)
}

func (p *fakePeripheral) Close() error {
	p.closed = true
	for conn := range p.links {
		p.Invalidate(conn)
	}
	return nil
}

func (p *fakePeripheral) wasInvalidated(conn radio.ConnectionID) bool {
	for _, c := range p.invalidated {
		if c == conn {
			return true
		}
	}
	return false
}

// fakeCentral implements radio.Central.
type fakeCentral struct {
	net      *testNet
	h        radio.CentralHandler
	ids      radio.ServiceIDs
	enabled  bool
	scanning bool
	peer     *fakePeripheral
	conn     radio.ConnectionID
	accepted bool
	holdAcks bool
	held     int
	closed   bool
}

func (c *fakeCentral) Initialize(ids radio.ServiceIDs, h radio.CentralHandler) error {
	c.ids, c.h = ids, h
	h.OnReady()
	return nil
}

func (c *fakeCentral) IsBluetoothEnabled() bool { return c.enabled }

func (c *fakeCentral) StartScan() error {
	c.scanning = true
	host := c.net.host
	if host.advertising != "" && host.ids.Service == c.ids.Service {
		c.h.OnDiscover(host.advertising, 1)
	}
	return nil
}

func (c *fakeCentral) StopScan() { c.scanning = false }

// Connect ignores service ids so tests can pair mismatched protocols.
func (c *fakeCentral) Connect(device radio.DeviceID) error {
	if device != 1 {
		return radio.ErrUnknownDevice
	}
	c.net.nextConn++
	c.conn = c.net.nextConn
	c.peer = c.net.host
	c.peer.links[c.conn] = c
	c.h.OnConnect()
	c.peer.h.OnConnect(c.conn)
	return nil
}

func (c *fakeCentral) Disconnect() {
	if c.peer == nil {
		return
	}
	peer, conn := c.peer, c.conn
	delete(peer.links, conn)
	c.peer, c.conn = nil, 0
	peer.h.OnDisconnect(conn)
}

func (c *fakeCentral) MaxWriteSize() int { return c.net.maxWrite }

func (c *fakeCentral) Write(chunk []byte) error {
	if c.peer == nil {
		return radio.ErrNotConnected
	}
	if len(chunk) > c.net.maxWrite {
		return radio.ErrWriteTooLarge
	}
	c.peer.h.OnReceive(c.conn, append([]byte(nil), chunk...))
	c.h.OnWritable()
	return nil
}

func (c *fakeCentral) Accept() { c.accepted = true }

func (c *fakeCentral) Close() error {
	c.closed = true
	c.Disconnect()
	return nil
}

// rawCentral is a hand-driven guest that speaks frames directly, used to
// exercise a Host with misbehaving peers.
type rawCentral struct {
	*fakeCentral
	reasm  *frame.Reassembler
	frames []frame.Frame
	down   bool
}

func (n *testNet) newRawCentral(ids radio.ServiceIDs) *rawCentral {
	r := &rawCentral{fakeCentral: n.newCentral(), reasm: frame.NewReassembler()}
	r.ids, r.h = ids, r
	return r
}

func (r *rawCentral) OnBluetoothRequire()               {}
func (r *rawCentral) OnReady()                          {}
func (r *rawCentral) OnFail(error)                      {}
func (r *rawCentral) OnDiscover(string, radio.DeviceID) {}
func (r *rawCentral) OnConnect()                        {}
func (r *rawCentral) OnDisconnect()                     { r.down = true }
func (r *rawCentral) OnWritable()                       {}

func (r *rawCentral) OnReceive(chunk []byte) {
	fs, err := r.reasm.Feed(chunk)
	if err != nil {
		panic(err)
	}
	r.frames = append(r.frames, fs...)
}

// send frames payload for addr and writes it in link-sized chunks.
func (r *rawCentral) send(addr uint16, payload []byte) error {
	o := frame.NewOutbox()
	if err := o.Enqueue(addr, payload); err != nil {
		return err
	}
	for {
		chunk, ok, err := o.Next(r.net.maxWrite)
		if err != nil || !ok {
			return err
		}
		if err := r.Write(chunk); err != nil {
			return err
		}
		o.Ack()
	}
}

func (r *rawCentral) sendControl(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return r.send(protocol.ControlAddress, data)
}

// control decodes every control frame received so far.
func (r *rawCentral) control() []protocol.Message {
	var out []protocol.Message
	for _, f := range r.frames {
		if f.Address != protocol.ControlAddress {
			continue
		}
		if m, err := protocol.Decode(f.Payload); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// rawPeripheral is a hand-driven host used to feed a Guest arbitrary
// control traffic.
type rawPeripheral struct {
	*fakePeripheral
	conns []radio.ConnectionID
}

func (n *testNet) newRawPeripheral(ids radio.ServiceIDs, name string) *rawPeripheral {
	r := &rawPeripheral{fakePeripheral: n.host}
	r.ids, r.h = ids, r
	r.advertising = name
	return r
}

func (r *rawPeripheral) OnBluetoothRequire()                  {}
func (r *rawPeripheral) OnReady()                             {}
func (r *rawPeripheral) OnFail(error)                         {}
func (r *rawPeripheral) OnConnect(conn radio.ConnectionID)    { r.conns = append(r.conns, conn) }
func (r *rawPeripheral) OnDisconnect(radio.ConnectionID)      {}
func (r *rawPeripheral) OnReceive(radio.ConnectionID, []byte) {}
func (r *rawPeripheral) OnWritable(radio.ConnectionID)        {}

func (r *rawPeripheral) send(conn radio.ConnectionID, addr uint16, payload []byte) error {
	o := frame.NewOutbox()
	if err := o.Enqueue(addr, payload); err != nil {
		return err
	}
	for {
		chunk, ok, err := o.Next(r.net.maxWrite)
		if err != nil || !ok {
			return err
		}
		if err := r.Write(conn, chunk); err != nil {
			return err
		}
		o.Ack()
	}
}

func (r *rawPeripheral) sendControl(conn radio.ConnectionID, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return r.send(conn, protocol.ControlAddress, data)
}
