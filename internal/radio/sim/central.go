package sim

import (
	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// Central is the guest side of the medium. It implements radio.Central.
type Central struct {
	air      *Air
	h        radio.CentralHandler
	ids      radio.ServiceIDs
	ready    bool
	closed   bool
	scanning bool
	link     *link
}

var _ radio.Central = (*Central)(nil)

func (c *Central) Initialize(ids radio.ServiceIDs, h radio.CentralHandler) error {
	a := c.air
	a.mu.Lock()
	if c.closed {
		a.mu.Unlock()
		return radio.ErrClosed
	}
	c.ids, c.h = ids, h
	c.ready = a.enabled
	ready := c.ready
	a.mu.Unlock()

	if ready {
		h.OnReady()
	} else {
		h.OnBluetoothRequire()
	}
	return nil
}

func (c *Central) IsBluetoothEnabled() bool {
	return c.air.BluetoothEnabled()
}

func (c *Central) check() error {
	switch {
	case c.closed:
		return radio.ErrClosed
	case c.h == nil:
		return radio.ErrNotInitialized
	case !c.ready:
		return radio.ErrBluetoothDisabled
	}
	return nil
}

// StartScan reports every current advertiser of the service, then keeps
// reporting new ones until StopScan.
func (c *Central) StartScan() error {
	a := c.air
	a.mu.Lock()
	if err := c.check(); err != nil {
		a.mu.Unlock()
		return err
	}
	c.scanning = true
	type seen struct {
		name   string
		device radio.DeviceID
	}
	var found []seen
	for _, p := range a.advertisers(c.ids) {
		found = append(found, seen{p.advertising, p.device})
	}
	a.mu.Unlock()

	for _, s := range found {
		c.h.OnDiscover(s.name, s.device)
	}
	return nil
}

func (c *Central) StopScan() {
	c.air.mu.Lock()
	c.scanning = false
	c.air.mu.Unlock()
}

// Connect links to the advertiser behind device. OnConnect is reported on
// both ends before any chunk can flow.
func (c *Central) Connect(device radio.DeviceID) error {
	a := c.air
	a.mu.Lock()
	if err := c.check(); err != nil {
		a.mu.Unlock()
		return err
	}
	var target *Peripheral
	for _, p := range a.advertisers(c.ids) {
		if p.device == device {
			target = p
			break
		}
	}
	if target == nil {
		a.mu.Unlock()
		return radio.ErrUnknownDevice
	}

	stale := c.link
	if stale != nil {
		a.detach(stale)
	}
	c.scanning = false
	l := a.newLink(target, c)
	target.links[l.id] = l
	c.link = l
	a.mu.Unlock()

	if stale != nil {
		stale.peripheralGone()
	}
	util.LogDebug("sim: link %d up to device %d", l.id, device)
	l.ch.OnConnect()
	l.ph.OnConnect(l.id)
	return nil
}

// Disconnect closes the current link. Only the peripheral is notified.
func (c *Central) Disconnect() {
	a := c.air
	a.mu.Lock()
	l := c.link
	if l == nil {
		a.mu.Unlock()
		return
	}
	a.detach(l)
	a.mu.Unlock()

	util.LogDebug("sim: link %d closed by central", l.id)
	l.peripheralGone()
}

func (c *Central) MaxWriteSize() int {
	return c.air.maxWrite()
}

func (c *Central) Write(chunk []byte) error {
	a := c.air
	a.mu.Lock()
	l := c.link
	a.mu.Unlock()

	if l == nil {
		return radio.ErrNotConnected
	}
	if len(chunk) > a.maxWrite() {
		return radio.ErrWriteTooLarge
	}
	return l.up.write(chunk)
}

func (c *Central) Accept() {
	a := c.air
	a.mu.Lock()
	defer a.mu.Unlock()
	if c.link != nil {
		c.link.accepted = true
	}
}

func (c *Central) Close() error {
	c.Disconnect()

	a := c.air
	a.mu.Lock()
	c.closed = true
	c.scanning = false
	a.remove(c)
	a.mu.Unlock()
	return nil
}

// isAccepted reports whether the current link was accepted by the session.
func (c *Central) isAccepted() bool {
	a := c.air
	a.mu.Lock()
	defer a.mu.Unlock()
	return c.link != nil && c.link.accepted
}
