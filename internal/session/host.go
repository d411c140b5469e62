package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/frame"
	"github.com/1ureka/blesock/internal/handshake"
	"github.com/1ureka/blesock/internal/protocol"
	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// Host owns the identity pool and the roster, admits guests through the
// challenge handshake and relays guest traffic to other guests.
type Host struct {
	core
	radio       radio.Peripheral
	advertising bool
	pool        *address.Pool
	conns       map[radio.ConnectionID]*hostConn
}

// hostConn is the per-link state. player is nil until admission.
type hostConn struct {
	id        radio.ConnectionID
	log       *util.Logger
	challenge *handshake.Challenge
	player    *Player
	outbox    *frame.Outbox
	reasm     *frame.Reassembler
	timer     *time.Timer
}

// NewHost returns a Host that will drive p.
func NewHost(p radio.Peripheral, opts ...Option) *Host {
	return &Host{
		core:  newCore("host", DefaultHostAcceptanceTimeout, opts),
		radio: p,
		conns: make(map[radio.ConnectionID]*hostConn),
	}
}

// Initialize derives the protocol secrets and brings the link up. Ready is
// reported through OnReady.
func (h *Host) Initialize(protocolID, playerName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.configure(protocolID, playerName); err != nil {
		return err
	}
	h.pool = address.NewPool()
	h.log.Debug("service %s", h.secrets.Service)

	if err := h.radio.Initialize(h.serviceIDs(), hostEvents{h}); err != nil {
		h.state = StateUninitialized
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	return nil
}

// IsReady reports whether the host can advertise and send.
func (h *Host) IsReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateReady
}

// IsAdvertising reports whether the host is advertising.
func (h *Host) IsAdvertising() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.advertising
}

// IsBluetoothEnabled reports whether the underlying link is available.
func (h *Host) IsBluetoothEnabled() bool {
	return h.radio.IsBluetoothEnabled()
}

// StartAdvertising makes the host discoverable under name.
func (h *Host) StartAdvertising(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.state == StateDisposed:
		return ErrDisposed
	case h.state != StateReady:
		return ErrNotReady
	case name == "" || len(name) > radio.DeviceNameMax:
		return fmt.Errorf("%w: device name must be 1 to %d bytes", ErrInvalidArgument, radio.DeviceNameMax)
	case h.advertising:
		return ErrAlreadyAdvertising
	}

	if err := h.radio.StartAdvertising(name); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	h.advertising = true
	h.log.Info("advertising as %q", name)
	return nil
}

// StopAdvertising stops advertising. Established connections stay up.
func (h *Host) StopAdvertising() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateDisposed {
		return ErrDisposed
	}
	if !h.advertising {
		return nil
	}
	h.radio.StopAdvertising()
	h.advertising = false
	return nil
}

// SetMaxPlayers changes the roster cap, host included. Zero removes it.
// Players already admitted are kept.
func (h *Host) SetMaxPlayers(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: max players must not be negative", ErrInvalidArgument)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.maxPlayers = n
	return nil
}

// Send delivers payload to the players selected by receiver. Guests whose
// connection fails while queueing are torn down and reported through
// OnPlayerLeave; Send itself still succeeds.
func (h *Host) Send(payload []byte, receiver address.Address) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkSend(payload, h.state == StateReady); err != nil {
		return err
	}

	remote, self := address.Split(address.Resolve(address.Host, receiver), address.Host)
	h.log.Debug("send %d bytes to %v", len(payload), address.Members(remote))
	var notices []notice
	for _, c := range h.conns {
		if c.player == nil || remote&uint16(c.player.ID) == 0 {
			continue
		}
		if err := h.enqueue(c, uint16(address.Host), payload); err != nil {
			notices = append(notices, h.drop(c, err)...)
		}
	}
	if self {
		notices = append(notices, noticeReceive(copyBytes(payload), h.local))
	}
	h.deliver(notices...)
	return nil
}

// Dispose drops every listener, then tears down all connections and the
// link. It is safe to call more than once.
func (h *Host) Dispose() {
	h.mu.Lock()
	if !h.markDisposed() {
		h.mu.Unlock()
		return
	}
	for _, c := range h.conns {
		c.stopTimer()
	}
	h.conns = make(map[radio.ConnectionID]*hostConn)
	h.advertising = false
	h.mu.Unlock()

	if err := h.radio.Close(); err != nil {
		h.log.Debug("close link: %v", err)
	}
	h.closeExecutor()
}

// ---------------------------------------------------------------------------
// Link events. Every method below runs inside dispatch with mu held.
// ---------------------------------------------------------------------------

func (h *Host) onReady() []notice {
	if h.state != StateInitializing {
		return nil
	}
	h.state = StateReady
	h.local = &Player{ID: address.Host, Name: h.local.Name}
	h.roster.add(h.local)
	h.log.Info("ready")
	return []notice{noticeReady()}
}

func (h *Host) onFail(err error) []notice {
	h.advertising = false
	h.log.Error("link failed: %v", err)
	return []notice{noticeFail(fmt.Errorf("%w: %w", ErrTransportFailure, err))}
}

func (h *Host) onConnect(id radio.ConnectionID) []notice {
	log := h.log.With("conn %d", id)
	if h.state != StateReady {
		log.Warn("connection before ready, invalidating")
		h.radio.Invalidate(id)
		return nil
	}
	var notices []notice
	if old := h.conns[id]; old != nil {
		log.Warn("connection id reused, dropping stale state")
		notices = h.release(old)
	}
	if limit := h.opts.maxPlayers; limit > 0 && h.roster.len() >= limit {
		log.Warn("player cap %d reached, invalidating", limit)
		util.Stats.AddReject()
		h.radio.Invalidate(id)
		return notices
	}

	challenge, err := handshake.NewChallenge(h.secrets)
	if err != nil {
		log.Error("%v", err)
		h.radio.Invalidate(id)
		return notices
	}

	c := &hostConn{
		id:        id,
		log:       log,
		challenge: challenge,
		outbox:    frame.NewOutbox(),
		reasm:     frame.NewReassembler(),
	}
	h.conns[id] = c
	c.timer = h.startTimer(func() []notice {
		if h.conns[id] != c || c.player != nil {
			return nil
		}
		return h.drop(c, ErrTimeout)
	})
	log.Debug("challenging")

	if err := h.sendControl(c, protocol.RequestAuthentication{Nonce: challenge.Nonce}); err != nil {
		return append(notices, h.drop(c, err)...)
	}
	return notices
}

func (h *Host) onDisconnect(id radio.ConnectionID) []notice {
	c := h.conns[id]
	if c == nil {
		return nil
	}
	c.log.Debug("disconnected")
	return h.release(c)
}

func (h *Host) onWritable(id radio.ConnectionID) []notice {
	c := h.conns[id]
	if c == nil {
		return nil
	}
	c.outbox.Ack()
	if err := h.pump(c); err != nil {
		return h.drop(c, err)
	}
	return nil
}

func (h *Host) onReceive(id radio.ConnectionID, chunk []byte) []notice {
	c := h.conns[id]
	if c == nil {
		return nil
	}
	util.Stats.AddRecv(len(chunk))

	frames, feedErr := c.reasm.Feed(chunk)
	var notices []notice
	for _, f := range frames {
		util.Stats.AddFrame()
		n, err := h.handleFrame(c, f)
		notices = append(notices, n...)
		if err != nil {
			return append(notices, h.drop(c, err)...)
		}
	}
	if feedErr != nil {
		return append(notices, h.drop(c, wrapFrameError(feedErr))...)
	}
	if !frame.More(chunk) && c.reasm.Buffered() > 0 {
		c.log.Debug("sender idle with %d bytes of a frame held", c.reasm.Buffered())
	}
	return notices
}

// ---------------------------------------------------------------------------
// Frame handling
// ---------------------------------------------------------------------------

func (h *Host) handleFrame(c *hostConn, f frame.Frame) ([]notice, error) {
	if f.Address == protocol.ControlAddress {
		msg, err := protocol.Decode(f.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		}
		m, ok := msg.(protocol.RespondAuthentication)
		if !ok || c.player != nil || c.challenge == nil {
			return nil, fmt.Errorf("%w: unexpected control message %d", ErrProtocolViolation, msg.Type())
		}
		return h.authenticate(c, m)
	}

	if c.player == nil {
		return nil, fmt.Errorf("%w: data before authentication", ErrProtocolViolation)
	}
	notices := h.relay(c, f.Address, f.Payload)
	if f.Address&uint16(address.Host) != 0 {
		notices = append(notices, noticeReceive(f.Payload, c.player))
	}
	return notices, nil
}

func (h *Host) authenticate(c *hostConn, m protocol.RespondAuthentication) ([]notice, error) {
	challenge := c.challenge
	c.challenge = nil

	if !challenge.Verify(m.Digest[:]) {
		return nil, ErrAuthenticationFailed
	}
	if !validName(m.Name) {
		return nil, fmt.Errorf("%w: bad player name", ErrProtocolViolation)
	}
	if limit := h.opts.maxPlayers; limit > 0 && h.roster.len() >= limit {
		c.log.Warn("player cap %d reached, %d identities free", limit, h.pool.Available())
		return nil, ErrPeerLimitExceeded
	}
	id, ok := h.pool.Allocate()
	if !ok {
		c.log.Warn("no identity left, %d free", h.pool.Available())
		return nil, ErrPeerLimitExceeded
	}

	accept := protocol.AcceptAuthentication{Identity: uint16(id), Players: h.roster.entries()}
	if err := h.sendControl(c, accept); err != nil {
		h.pool.Release(id)
		return nil, err
	}

	c.stopTimer()
	player := &Player{ID: id, Name: m.Name}
	c.player = player
	c.log = h.log.With("conn %d %s", c.id, id)
	h.radio.Accept(c.id, uint16(id))
	h.roster.add(player)

	notices := h.broadcastControl(protocol.PlayerJoin{Identity: uint16(id), Name: m.Name}, c)
	util.Stats.AddJoin()
	c.log.Info("%q joined", m.Name)
	return append(notices, noticeJoin(player)), nil
}

// relay forwards a guest's frame to every other admitted guest in mask.
func (h *Host) relay(from *hostConn, mask uint16, payload []byte) []notice {
	src := uint16(from.player.ID)
	var notices []notice
	for _, c := range h.conns {
		if c == from || c.player == nil || mask&uint16(c.player.ID) == 0 {
			continue
		}
		if err := h.enqueue(c, src, payload); err != nil {
			notices = append(notices, h.drop(c, err)...)
			continue
		}
		util.Stats.AddRelay()
	}
	return notices
}

// ---------------------------------------------------------------------------
// Connection plumbing
// ---------------------------------------------------------------------------

func (h *Host) sendControl(c *hostConn, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	return h.enqueue(c, protocol.ControlAddress, data)
}

// broadcastControl sends msg to every admitted connection except skip.
// Connections that fail are dropped.
func (h *Host) broadcastControl(msg protocol.Message, skip *hostConn) []notice {
	var notices []notice
	for _, c := range h.conns {
		if c == skip || c.player == nil {
			continue
		}
		if err := h.sendControl(c, msg); err != nil {
			notices = append(notices, h.drop(c, err)...)
		}
	}
	return notices
}

func (h *Host) enqueue(c *hostConn, addr uint16, payload []byte) error {
	if err := c.outbox.Enqueue(addr, payload); err != nil {
		return wrapFrameError(err)
	}
	return h.pump(c)
}

// pump writes the next chunk if the link is idle.
func (h *Host) pump(c *hostConn) error {
	if c.outbox.InFlight() {
		return nil
	}
	chunk, ok, err := c.outbox.Next(h.radio.MaxWriteSize(c.id))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	if !ok {
		return nil
	}
	if err := h.radio.Write(c.id, chunk); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	util.Stats.AddSent(len(chunk))
	return nil
}

// drop tears down c after a failure and invalidates the link.
func (h *Host) drop(c *hostConn, cause error) []notice {
	if h.conns[c.id] != c {
		return nil
	}
	c.log.Warn("dropping connection: %v", cause)
	util.Stats.AddReject()
	notices := h.release(c)
	h.radio.Invalidate(c.id)
	return notices
}

// release forgets c and, if it was admitted, returns its identity and tells
// the remaining guests.
func (h *Host) release(c *hostConn) []notice {
	if h.conns[c.id] != c {
		return nil
	}
	delete(h.conns, c.id)
	c.stopTimer()
	c.outbox.Reset()
	c.reasm.Reset()

	p := c.player
	if p == nil {
		return nil
	}
	c.player = nil
	h.pool.Release(p.ID)
	h.roster.remove(p.ID)
	util.Stats.AddLeave()
	h.log.Info("%q left", p.Name)

	notices := h.broadcastControl(protocol.PlayerLeave{Identity: uint16(p.ID)}, nil)
	return append(notices, noticeLeave(p))
}

func (c *hostConn) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// wrapFrameError maps frame codec failures onto session errors.
func wrapFrameError(err error) error {
	switch {
	case errors.Is(err, frame.ErrSendBufferOverflow), errors.Is(err, frame.ErrReceiveBufferOverflow):
		return fmt.Errorf("%w: %w", ErrBufferOverflow, err)
	case errors.Is(err, frame.ErrMessageTooLarge):
		return fmt.Errorf("%w: %w", ErrMessageTooLarge, err)
	default:
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
}

// hostEvents adapts Host to radio.PeripheralHandler.
type hostEvents struct{ h *Host }

func (e hostEvents) OnBluetoothRequire() {
	e.h.dispatch(func() []notice { return []notice{noticeBluetoothRequire()} })
}

func (e hostEvents) OnReady() { e.h.dispatch(e.h.onReady) }

func (e hostEvents) OnFail(err error) {
	e.h.dispatch(func() []notice { return e.h.onFail(err) })
}

func (e hostEvents) OnConnect(id radio.ConnectionID) {
	e.h.dispatch(func() []notice { return e.h.onConnect(id) })
}

func (e hostEvents) OnDisconnect(id radio.ConnectionID) {
	e.h.dispatch(func() []notice { return e.h.onDisconnect(id) })
}

func (e hostEvents) OnReceive(id radio.ConnectionID, chunk []byte) {
	e.h.dispatch(func() []notice { return e.h.onReceive(id, chunk) })
}

func (e hostEvents) OnWritable(id radio.ConnectionID) {
	e.h.dispatch(func() []notice { return e.h.onWritable(id) })
}
