package session

import (
	"fmt"
	"sync"

	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// Listener observes a session. All methods run on the session executor,
// never concurrently. A returned error is logged and does not stop delivery
// to other listeners.
//
// Hosts never call OnDiscover, OnConnect or OnDisconnect.
type Listener interface {
	OnReady() error
	OnBluetoothRequire() error
	// OnFail reports a failure that returned the session to a consistent
	// state. err wraps one of the session errors.
	OnFail(err error) error
	OnDiscover(name string, device radio.DeviceID) error
	OnConnect() error
	OnDisconnect() error
	OnPlayerJoin(p *Player) error
	OnPlayerLeave(p *Player) error
	OnReceive(payload []byte, from *Player) error
}

// Funcs adapts plain functions to a Listener. Nil fields are skipped.
type Funcs struct {
	Ready            func()
	BluetoothRequire func()
	Fail             func(err error)
	Discover         func(name string, device radio.DeviceID)
	Connect          func()
	Disconnect       func()
	PlayerJoin       func(p *Player)
	PlayerLeave      func(p *Player)
	Receive          func(payload []byte, from *Player)
}

func (f Funcs) OnReady() error {
	if f.Ready != nil {
		f.Ready()
	}
	return nil
}

func (f Funcs) OnBluetoothRequire() error {
	if f.BluetoothRequire != nil {
		f.BluetoothRequire()
	}
	return nil
}

func (f Funcs) OnFail(err error) error {
	if f.Fail != nil {
		f.Fail(err)
	}
	return nil
}

func (f Funcs) OnDiscover(name string, device radio.DeviceID) error {
	if f.Discover != nil {
		f.Discover(name, device)
	}
	return nil
}

func (f Funcs) OnConnect() error {
	if f.Connect != nil {
		f.Connect()
	}
	return nil
}

func (f Funcs) OnDisconnect() error {
	if f.Disconnect != nil {
		f.Disconnect()
	}
	return nil
}

func (f Funcs) OnPlayerJoin(p *Player) error {
	if f.PlayerJoin != nil {
		f.PlayerJoin(p)
	}
	return nil
}

func (f Funcs) OnPlayerLeave(p *Player) error {
	if f.PlayerLeave != nil {
		f.PlayerLeave(p)
	}
	return nil
}

func (f Funcs) OnReceive(payload []byte, from *Player) error {
	if f.Receive != nil {
		f.Receive(payload, from)
	}
	return nil
}

// notice is one pending notification.
type notice struct {
	name string
	call func(Listener) error
}

func noticeReady() notice {
	return notice{"ready", func(l Listener) error { return l.OnReady() }}
}

func noticeBluetoothRequire() notice {
	return notice{"bluetooth-require", func(l Listener) error { return l.OnBluetoothRequire() }}
}

func noticeFail(err error) notice {
	return notice{"fail", func(l Listener) error { return l.OnFail(err) }}
}

func noticeDiscover(name string, device radio.DeviceID) notice {
	return notice{"discover", func(l Listener) error { return l.OnDiscover(name, device) }}
}

func noticeConnect() notice {
	return notice{"connect", func(l Listener) error { return l.OnConnect() }}
}

func noticeDisconnect() notice {
	return notice{"disconnect", func(l Listener) error { return l.OnDisconnect() }}
}

func noticeJoin(p *Player) notice {
	return notice{"player-join", func(l Listener) error { return l.OnPlayerJoin(p) }}
}

func noticeLeave(p *Player) notice {
	return notice{"player-leave", func(l Listener) error { return l.OnPlayerLeave(p) }}
}

func noticeReceive(payload []byte, from *Player) notice {
	return notice{"receive", func(l Listener) error { return l.OnReceive(payload, from) }}
}

// listeners is the subscription table.
type listeners struct {
	mu      sync.Mutex
	nextID  int
	entries []listenerEntry
}

type listenerEntry struct {
	id int
	l  Listener
}

func (ls *listeners) add(l Listener) func() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.nextID++
	id := ls.nextID
	ls.entries = append(ls.entries, listenerEntry{id: id, l: l})

	return func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		for i, e := range ls.entries {
			if e.id == id {
				ls.entries = append(ls.entries[:i:i], ls.entries[i+1:]...)
				return
			}
		}
	}
}

func (ls *listeners) snapshot() []Listener {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]Listener, len(ls.entries))
	for i, e := range ls.entries {
		out[i] = e.l
	}
	return out
}

func (ls *listeners) clear() {
	ls.mu.Lock()
	ls.entries = nil
	ls.mu.Unlock()
}

// emit delivers each notice to every current listener.
func (ls *listeners) emit(log *util.Logger, notices []notice) {
	if len(notices) == 0 {
		return
	}
	for _, n := range notices {
		for _, l := range ls.snapshot() {
			if err := safeCall(n, l); err != nil {
				log.Warn("listener %s: %v", n.name, err)
			}
		}
	}
}

func safeCall(n notice, l Listener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.call(l)
}
