package sim_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/radio/sim"
	"github.com/1ureka/blesock/internal/session"
)

type message struct {
	from    string
	payload []byte
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

type peer struct {
	ready   chan struct{}
	found   chan radio.DeviceID
	online  chan struct{}
	joined  chan string
	left    chan string
	inbox   chan message
	offline chan struct{}
}

func newPeer() *peer {
	return &peer{
		ready:   make(chan struct{}, 1),
		found:   make(chan radio.DeviceID, 8),
		online:  make(chan struct{}, 1),
		joined:  make(chan string, 8),
		left:    make(chan string, 8),
		inbox:   make(chan message, 64),
		offline: make(chan struct{}, 1),
	}
}

func (p *peer) funcs() session.Funcs {
	return session.Funcs{
		Ready:       func() { p.ready <- struct{}{} },
		Discover:    func(_ string, device radio.DeviceID) { p.found <- device },
		Connect:     func() { p.online <- struct{}{} },
		Disconnect:  func() { p.offline <- struct{}{} },
		PlayerJoin:  func(pl *session.Player) { p.joined <- pl.Name },
		PlayerLeave: func(pl *session.Player) { p.left <- pl.Name },
		Receive: func(payload []byte, from *session.Player) {
			p.inbox <- message{from: from.Name, payload: payload}
		},
	}
}

func join(t *testing.T, air *sim.Air, name string) (*session.Guest, *peer) {
	t.Helper()
	g := session.NewGuest(air.NewCentral())
	t.Cleanup(g.Dispose)
	p := newPeer()
	g.Subscribe(p.funcs())

	require.NoError(t, g.Initialize("chat", name))
	recv(t, p.ready)
	require.NoError(t, g.StartScan())
	require.NoError(t, g.Connect(recv(t, p.found)))
	recv(t, p.online)
	return g, p
}

func TestSessionsOverAir(t *testing.T) {
	air := sim.NewAir(sim.WithLatency(time.Millisecond))

	host := session.NewHost(air.NewPeripheral())
	t.Cleanup(host.Dispose)
	hp := newPeer()
	host.Subscribe(hp.funcs())
	require.NoError(t, host.Initialize("chat", "Alice"))
	recv(t, hp.ready)
	require.NoError(t, host.StartAdvertising("Alice's room"))

	bob, bp := join(t, air, "Bob")
	assert.Equal(t, "Bob", recv(t, hp.joined))
	carol, cp := join(t, air, "Carol")
	assert.Equal(t, "Carol", recv(t, hp.joined))
	assert.Equal(t, "Carol", recv(t, bp.joined))

	require.NoError(t, bob.Send([]byte("hello"), address.All))
	for _, p := range []*peer{hp, bp, cp} {
		m := recv(t, p.inbox)
		assert.Equal(t, "Bob", m.from)
		assert.Equal(t, []byte("hello"), m.payload)
	}

	big := bytes.Repeat([]byte{0x5A}, 4096)
	require.NoError(t, host.Send(big, address.To(carol.LocalIdentity())))
	m := recv(t, cp.inbox)
	assert.Equal(t, "Alice", m.from)
	assert.Equal(t, big, m.payload)

	require.NoError(t, carol.Disconnect())
	recv(t, cp.offline)
	assert.Equal(t, "Carol", recv(t, hp.left))
	assert.Equal(t, "Carol", recv(t, bp.left))
	assert.Len(t, host.Players(), 2)
	assert.Len(t, bob.Players(), 2)
	assert.Empty(t, bp.inbox, "bob was not addressed")
}

func TestWrongProtocolOverAir(t *testing.T) {
	air := sim.NewAir()

	host := session.NewHost(air.NewPeripheral())
	t.Cleanup(host.Dispose)
	hp := newPeer()
	host.Subscribe(hp.funcs())
	require.NoError(t, host.Initialize("chat", "Alice"))
	recv(t, hp.ready)
	require.NoError(t, host.StartAdvertising("Alice's room"))

	g := session.NewGuest(air.NewCentral())
	t.Cleanup(g.Dispose)
	p := newPeer()
	g.Subscribe(p.funcs())
	require.NoError(t, g.Initialize("other", "Mallory"))
	recv(t, p.ready)

	require.NoError(t, g.StartScan())
	select {
	case <-p.found:
		t.Fatal("host of another protocol was discovered")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, g.StopScan())
	assert.Len(t, host.Players(), 1)
}
