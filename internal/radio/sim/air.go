// Package sim is an in-process radio medium.
//
// Nodes created from the same Air see each other's advertisements and
// connect through links that deliver chunks in order, with one write in
// flight per direction. Latency and bandwidth can be shaped to resemble a
// real low-energy link.
package sim

import (
	"sync"
	"time"

	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

const (
	// DefaultMTU is the link MTU before negotiation: 23 bytes, 20 of data.
	DefaultMTU = 23
	// MaxMTU is the largest MTU a link can negotiate.
	MaxMTU = 512

	attHeaderSize = 3
)

// Option configures an Air.
type Option func(*Air)

// WithMTU sets the link MTU. Values are clamped to [DefaultMTU, MaxMTU].
func WithMTU(mtu int) Option {
	return func(a *Air) { a.mtu = min(max(mtu, DefaultMTU), MaxMTU) }
}

// WithLatency delays every chunk by d.
func WithLatency(d time.Duration) Option {
	return func(a *Air) { a.latency = d }
}

// WithBandwidth limits each direction of each link to bytesPerSecond.
// Zero means unlimited.
func WithBandwidth(bytesPerSecond int) Option {
	return func(a *Air) { a.bandwidth = bytesPerSecond }
}

// WithBluetoothEnabled sets the initial adapter state. Default true.
func WithBluetoothEnabled(on bool) Option {
	return func(a *Air) { a.enabled = on }
}

// Air is the shared medium.
type Air struct {
	mu          sync.Mutex
	mtu         int
	latency     time.Duration
	bandwidth   int
	enabled     bool
	nextDevice  radio.DeviceID
	nextConn    radio.ConnectionID
	peripherals []*Peripheral
	centrals    []*Central
}

// NewAir returns an empty medium.
func NewAir(opts ...Option) *Air {
	a := &Air{mtu: DefaultMTU, enabled: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Air) maxWrite() int {
	return a.mtu - attHeaderSize
}

// NewPeripheral adds a host-side node.
func (a *Air) NewPeripheral() *Peripheral {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextDevice++
	p := &Peripheral{
		air:    a,
		device: a.nextDevice,
		links:  make(map[radio.ConnectionID]*link),
	}
	a.peripherals = append(a.peripherals, p)
	return p
}

// NewCentral adds a guest-side node.
func (a *Air) NewCentral() *Central {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := &Central{air: a}
	a.centrals = append(a.centrals, c)
	return c
}

// BluetoothEnabled reports whether the medium is switched on.
func (a *Air) BluetoothEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetBluetoothEnabled switches the adapter. Turning it off tears down every
// link and reports radio.ErrBluetoothDisabled to initialized nodes; turning
// it on makes nodes that were told to enable bluetooth ready.
func (a *Air) SetBluetoothEnabled(on bool) {
	a.mu.Lock()
	if a.enabled == on {
		a.mu.Unlock()
		return
	}
	a.enabled = on
	util.LogDebug("sim: bluetooth enabled=%v", on)

	var calls []func()
	if on {
		for _, p := range a.peripherals {
			if p.h != nil && !p.ready {
				p.ready = true
				calls = append(calls, p.h.OnReady)
			}
		}
		for _, c := range a.centrals {
			if c.h != nil && !c.ready {
				c.ready = true
				calls = append(calls, c.h.OnReady)
			}
		}
	} else {
		for _, p := range a.peripherals {
			for _, l := range p.links {
				a.detach(l)
				calls = append(calls, l.centralGone, l.peripheralGone)
			}
			p.advertising = ""
		}
		for _, p := range a.peripherals {
			if p.ready {
				p.ready = false
				h := p.h
				calls = append(calls, func() { h.OnFail(radio.ErrBluetoothDisabled) })
			}
		}
		for _, c := range a.centrals {
			c.scanning = false
			if c.ready {
				c.ready = false
				h := c.h
				calls = append(calls, func() { h.OnFail(radio.ErrBluetoothDisabled) })
			}
		}
	}
	a.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

// advertisers returns the advertising peripherals offering service.
// The caller holds mu.
func (a *Air) advertisers(ids radio.ServiceIDs) []*Peripheral {
	var out []*Peripheral
	for _, p := range a.peripherals {
		if p.advertising != "" && p.ids.Service == ids.Service {
			out = append(out, p)
		}
	}
	return out
}

// scanners returns the scanning centrals looking for service.
// The caller holds mu.
func (a *Air) scanners(ids radio.ServiceIDs) []*Central {
	var out []*Central
	for _, c := range a.centrals {
		if c.scanning && c.ids.Service == ids.Service {
			out = append(out, c)
		}
	}
	return out
}

// detach unregisters l from both ends and stops its pipes. The caller holds
// mu.
func (a *Air) detach(l *link) {
	delete(l.p.links, l.id)
	if l.c.link == l {
		l.c.link = nil
	}
	l.cancel()
}

func (a *Air) remove(node any) {
	switch n := node.(type) {
	case *Peripheral:
		for i, p := range a.peripherals {
			if p == n {
				a.peripherals = append(a.peripherals[:i], a.peripherals[i+1:]...)
				return
			}
		}
	case *Central:
		for i, c := range a.centrals {
			if c == n {
				a.centrals = append(a.centrals[:i], a.centrals[i+1:]...)
				return
			}
		}
	}
}
