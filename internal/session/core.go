// Package session implements the host and guest state machines that sit
// between an application and a radio link.
//
// Every link event is posted to the session executor before it touches
// session state, and every notification to the application runs on that
// executor. Public methods may be called from any goroutine; they take the
// same lock the posted handlers take.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/frame"
	"github.com/1ureka/blesock/internal/handshake"
	"github.com/1ureka/blesock/internal/loop"
	"github.com/1ureka/blesock/internal/protocol"
	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// core is the state shared by Host and Guest.
type core struct {
	mu      sync.Mutex
	log     *util.Logger
	opts    options
	exec    loop.Executor
	own     *loop.Loop
	subs    listeners
	secrets *handshake.Secrets
	local   *Player
	roster  roster
	state   State
}

func newCore(scope string, timeout time.Duration, opts []Option) core {
	o := buildOptions(timeout, opts)
	return core{
		log:  util.Scope(scope),
		opts: o,
		exec: o.executor,
	}
}

// configure validates Initialize arguments, derives the protocol secrets and
// starts the executor. The caller holds mu.
func (c *core) configure(protocolID, playerName string) error {
	switch c.state {
	case StateUninitialized:
	case StateDisposed:
		return ErrDisposed
	default:
		return ErrAlreadyInitialized
	}

	if !validName(playerName) {
		return fmt.Errorf("%w: player name must be 1 to %d bytes", ErrConfiguration, protocol.NameLengthMax)
	}
	secrets, err := handshake.Derive(protocolID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	c.secrets = secrets
	c.local = &Player{Name: playerName}
	if c.exec == nil {
		c.own = loop.New()
		c.own.Start()
		c.exec = c.own
	}
	c.state = StateInitializing
	return nil
}

func (c *core) serviceIDs() radio.ServiceIDs {
	return radio.ServiceIDs{
		Service:  c.secrets.Service,
		Upload:   c.secrets.Upload,
		Download: c.secrets.Download,
	}
}

// dispatch posts fn to the executor. fn runs with mu held; the notices it
// returns are delivered after mu is released.
func (c *core) dispatch(fn func() []notice) {
	c.exec.Post(func() {
		c.mu.Lock()
		if c.state == StateDisposed {
			c.mu.Unlock()
			return
		}
		notices := fn()
		c.mu.Unlock()

		c.subs.emit(c.log, notices)
	})
}

// deliver posts notices produced outside a dispatched handler.
func (c *core) deliver(notices ...notice) {
	if len(notices) == 0 {
		return
	}
	c.exec.Post(func() { c.subs.emit(c.log, notices) })
}

// startTimer arms the acceptance deadline. fn runs as a dispatched handler.
func (c *core) startTimer(fn func() []notice) *time.Timer {
	if c.opts.acceptanceTimeout <= 0 {
		return nil
	}
	return time.AfterFunc(c.opts.acceptanceTimeout, func() { c.dispatch(fn) })
}

// checkSend applies the validation shared by both roles. The caller holds mu.
func (c *core) checkSend(payload []byte, ready bool) error {
	if c.state == StateDisposed {
		return ErrDisposed
	}
	if !ready {
		return ErrNotReady
	}
	if payload == nil {
		return fmt.Errorf("%w: nil payload", ErrInvalidArgument)
	}
	if len(payload) > frame.MessageSizeMax {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	return nil
}

// markDisposed enters the terminal state and drops every listener. It
// reports false if the session was already disposed. The caller holds mu.
func (c *core) markDisposed() bool {
	if c.state == StateDisposed {
		return false
	}
	c.state = StateDisposed
	c.subs.clear()
	c.roster.clear()
	return true
}

func (c *core) closeExecutor() {
	if c.own != nil {
		c.own.Close()
	}
}

// Subscribe registers l and returns a function that removes it.
func (c *core) Subscribe(l Listener) (unsubscribe func()) {
	if l == nil {
		return func() {}
	}
	return c.subs.add(l)
}

// State returns the current lifecycle state.
func (c *core) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Players returns a snapshot of the roster, local player included once
// admitted.
func (c *core) Players() []*Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roster.list()
}

// LocalPlayer returns the local player, or nil before Initialize.
func (c *core) LocalPlayer() *Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// LocalIdentity returns the local player's identity; zero while a guest is
// not admitted.
func (c *core) LocalIdentity() address.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local == nil {
		return 0
	}
	return c.local.ID
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
