package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/radio"
)

type delivery struct {
	payload []byte
	from    address.Identity
}

// recorder collects every notification of one session.
type recorder struct {
	ready       int
	btRequire   int
	fails       []error
	devices     []radio.DeviceID
	names       []string
	connects    int
	disconnects int
	joins       []*Player
	leaves      []*Player
	received    []delivery
}

func (r *recorder) funcs() Funcs {
	return Funcs{
		Ready:            func() { r.ready++ },
		BluetoothRequire: func() { r.btRequire++ },
		Fail:             func(err error) { r.fails = append(r.fails, err) },
		Discover: func(name string, device radio.DeviceID) {
			r.names = append(r.names, name)
			r.devices = append(r.devices, device)
		},
		Connect:     func() { r.connects++ },
		Disconnect:  func() { r.disconnects++ },
		PlayerJoin:  func(p *Player) { r.joins = append(r.joins, p) },
		PlayerLeave: func(p *Player) { r.leaves = append(r.leaves, p) },
		Receive: func(payload []byte, from *Player) {
			r.received = append(r.received, delivery{payload: payload, from: from.ID})
		},
	}
}

func (r *recorder) reset() {
	*r = recorder{}
}

func quiet() []Option {
	return []Option{WithAcceptanceTimeout(0)}
}

// startHost brings up a Host named Alice advertising as AliceHost.
func startHost(t *testing.T, n *testNet, opts ...Option) (*Host, *recorder) {
	t.Helper()
	h := NewHost(n.host, append([]Option{WithExecutor(n.q)}, append(quiet(), opts...)...)...)
	rec := &recorder{}
	h.Subscribe(rec.funcs())

	require.NoError(t, h.Initialize("Proto", "Alice"))
	n.run()
	require.Equal(t, 1, rec.ready)
	require.True(t, h.IsReady())
	require.NoError(t, h.StartAdvertising("AliceHost"))
	return h, rec
}

// newGuest returns an initialized, ready Guest.
func newGuest(t *testing.T, n *testNet, protocolID, name string, opts ...Option) (*Guest, *recorder, *fakeCentral) {
	t.Helper()
	c := n.newCentral()
	g := NewGuest(c, append([]Option{WithExecutor(n.q)}, append(quiet(), opts...)...)...)
	rec := &recorder{}
	g.Subscribe(rec.funcs())

	require.NoError(t, g.Initialize(protocolID, name))
	n.run()
	require.Equal(t, StateReady, g.State())
	return g, rec, c
}

// joinGuest scans, connects and waits until the guest is online.
func joinGuest(t *testing.T, n *testNet, name string) (*Guest, *recorder, *fakeCentral) {
	t.Helper()
	g, rec, c := newGuest(t, n, "Proto", name)

	require.NoError(t, g.StartScan())
	n.run()
	require.NotEmpty(t, rec.devices, "no host discovered")

	require.NoError(t, g.Connect(rec.devices[len(rec.devices)-1]))
	n.run()
	require.Equal(t, StateOnline, g.State())
	require.Equal(t, 1, rec.connects)
	return g, rec, c
}

// waitFor drives the network until cond holds. Timers fire on their own
// goroutines and post into the queue.
func (n *testNet) waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n.run()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func identities(players []*Player) map[address.Identity]string {
	out := make(map[address.Identity]string, len(players))
	for _, p := range players {
		out[p.ID] = p.Name
	}
	return out
}

func countFrom(ds []delivery, id address.Identity) int {
	n := 0
	for _, d := range ds {
		if d.from == id {
			n++
		}
	}
	return n
}
