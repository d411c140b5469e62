package sim

import (
	"fmt"

	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// Peripheral is the host side of the medium. It implements radio.Peripheral.
type Peripheral struct {
	air         *Air
	h           radio.PeripheralHandler
	ids         radio.ServiceIDs
	device      radio.DeviceID
	ready       bool
	closed      bool
	advertising string
	links       map[radio.ConnectionID]*link
}

var _ radio.Peripheral = (*Peripheral)(nil)

func (p *Peripheral) Initialize(ids radio.ServiceIDs, h radio.PeripheralHandler) error {
	a := p.air
	a.mu.Lock()
	if p.closed {
		a.mu.Unlock()
		return radio.ErrClosed
	}
	p.ids, p.h = ids, h
	p.ready = a.enabled
	ready := p.ready
	a.mu.Unlock()

	if ready {
		h.OnReady()
	} else {
		h.OnBluetoothRequire()
	}
	return nil
}

func (p *Peripheral) IsBluetoothEnabled() bool {
	return p.air.BluetoothEnabled()
}

// check reports why the node cannot act. The caller holds air.mu.
func (p *Peripheral) check() error {
	switch {
	case p.closed:
		return radio.ErrClosed
	case p.h == nil:
		return radio.ErrNotInitialized
	case !p.ready:
		return radio.ErrBluetoothDisabled
	}
	return nil
}

// StartAdvertising announces name to every scanning central that looks for
// this peripheral's service.
func (p *Peripheral) StartAdvertising(name string) error {
	a := p.air
	a.mu.Lock()
	if err := p.check(); err != nil {
		a.mu.Unlock()
		return err
	}
	if name == "" || len(name) > radio.DeviceNameMax {
		a.mu.Unlock()
		return fmt.Errorf("sim: device name must be 1 to %d bytes", radio.DeviceNameMax)
	}
	p.advertising = name
	scanners := a.scanners(p.ids)
	device := p.device
	a.mu.Unlock()

	util.LogDebug("sim: device %d advertising %q", device, name)
	for _, c := range scanners {
		c.h.OnDiscover(name, device)
	}
	return nil
}

func (p *Peripheral) StopAdvertising() {
	p.air.mu.Lock()
	p.advertising = ""
	p.air.mu.Unlock()
}

func (p *Peripheral) MaxWriteSize(radio.ConnectionID) int {
	return p.air.maxWrite()
}

func (p *Peripheral) Write(conn radio.ConnectionID, chunk []byte) error {
	a := p.air
	a.mu.Lock()
	l := p.links[conn]
	a.mu.Unlock()

	if l == nil {
		return radio.ErrUnknownConnection
	}
	if len(chunk) > a.maxWrite() {
		return radio.ErrWriteTooLarge
	}
	return l.down.write(chunk)
}

func (p *Peripheral) Accept(conn radio.ConnectionID, identity uint16) {
	a := p.air
	a.mu.Lock()
	defer a.mu.Unlock()
	if l := p.links[conn]; l != nil {
		l.identity = identity
		util.LogDebug("sim: link %d accepted as %#04x", conn, identity)
	}
}

// Invalidate drops conn. Both ends receive OnDisconnect.
func (p *Peripheral) Invalidate(conn radio.ConnectionID) {
	a := p.air
	a.mu.Lock()
	l := p.links[conn]
	if l == nil {
		a.mu.Unlock()
		return
	}
	identity := l.identity
	a.detach(l)
	a.mu.Unlock()

	util.LogDebug("sim: link %d (%#04x) invalidated", conn, identity)
	l.centralGone()
	l.peripheralGone()
}

// Close stops advertising and drops every link. Centrals are told their
// link is gone.
func (p *Peripheral) Close() error {
	a := p.air
	a.mu.Lock()
	if p.closed {
		a.mu.Unlock()
		return nil
	}
	p.closed = true
	p.advertising = ""
	var gone []*link
	for _, l := range p.links {
		a.detach(l)
		gone = append(gone, l)
	}
	a.remove(p)
	a.mu.Unlock()

	for _, l := range gone {
		l.centralGone()
	}
	return nil
}
