package session

import (
	"fmt"
	"time"

	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/frame"
	"github.com/1ureka/blesock/internal/protocol"
	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/util"
)

// Guest scans for hosts, joins one through the challenge handshake and
// exchanges messages with every player in that host's session.
type Guest struct {
	core
	radio     radio.Central
	outbox    *frame.Outbox
	reasm     *frame.Reassembler
	timer     *time.Timer
	responded bool
}

// NewGuest returns a Guest that will drive c.
func NewGuest(c radio.Central, opts ...Option) *Guest {
	return &Guest{
		core:   newCore("guest", DefaultGuestAcceptanceTimeout, opts),
		radio:  c,
		outbox: frame.NewOutbox(),
		reasm:  frame.NewReassembler(),
	}
}

// Initialize derives the protocol secrets and brings the link up. Ready is
// reported through OnReady.
func (g *Guest) Initialize(protocolID, playerName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.configure(protocolID, playerName); err != nil {
		return err
	}
	g.log.Debug("service %s", g.secrets.Service)

	if err := g.radio.Initialize(g.serviceIDs(), guestEvents{g}); err != nil {
		g.state = StateUninitialized
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	return nil
}

// IsOnline reports whether the guest has been admitted by a host.
func (g *Guest) IsOnline() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == StateOnline
}

// IsBluetoothEnabled reports whether the underlying link is available.
func (g *Guest) IsBluetoothEnabled() bool {
	return g.radio.IsBluetoothEnabled()
}

// StartScan begins discovery. Calling it while scanning is a no-op.
func (g *Guest) StartScan() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateScanning:
		return nil
	case StateReady:
	default:
		return g.stateError()
	}

	if err := g.radio.StartScan(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	g.state = StateScanning
	return nil
}

// StopScan ends discovery. Calling it while not scanning is a no-op.
func (g *Guest) StopScan() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateDisposed {
		return ErrDisposed
	}
	if g.state != StateScanning {
		return nil
	}
	g.radio.StopScan()
	g.state = StateReady
	return nil
}

// Connect starts joining the host behind device. Scanning stops first.
// The outcome is reported through OnConnect or OnFail.
func (g *Guest) Connect(device radio.DeviceID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateScanning:
		g.radio.StopScan()
		g.state = StateReady
	case StateReady:
	default:
		return g.stateError()
	}

	g.resetLink()
	if err := g.radio.Connect(device); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	g.state = StateConnecting
	g.log.Debug("connecting to device %d", device)

	var timer *time.Timer
	timer = g.startTimer(func() []notice {
		if g.timer != timer || !g.state.linked() || g.state == StateOnline {
			return nil
		}
		return g.abort(ErrTimeout)
	})
	g.timer = timer
	return nil
}

// Disconnect leaves the host or cancels a connection attempt. Leaving an
// established session is reported through OnDisconnect; cancelling an
// attempt is silent.
func (g *Guest) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateDisposed {
		return ErrDisposed
	}
	if !g.state.linked() {
		return nil
	}
	wasOnline := g.state == StateOnline
	g.resetLink()
	g.radio.Disconnect()
	if wasOnline {
		g.log.Info("left session")
		g.deliver(noticeDisconnect())
	}
	return nil
}

// Send delivers payload to the players selected by receiver. A link
// failure while queueing disconnects the guest and is reported through
// OnDisconnect; Send itself still succeeds.
func (g *Guest) Send(payload []byte, receiver address.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkSend(payload, g.state == StateOnline); err != nil {
		return err
	}

	local := g.local
	remote, self := address.Split(address.Resolve(local.ID, receiver), local.ID)
	if remote != 0 {
		if err := g.enqueue(remote, payload); err != nil {
			g.deliver(g.abort(err)...)
			return nil
		}
	}
	if self {
		g.deliver(noticeReceive(copyBytes(payload), local))
	}
	return nil
}

// Dispose drops every listener, then tears down the link. It is safe to
// call more than once.
func (g *Guest) Dispose() {
	g.mu.Lock()
	if !g.markDisposed() {
		g.mu.Unlock()
		return
	}
	g.stopTimer()
	g.outbox.Reset()
	g.reasm.Reset()
	g.mu.Unlock()

	if err := g.radio.Close(); err != nil {
		g.log.Debug("close link: %v", err)
	}
	g.closeExecutor()
}

// stateError explains why an operation is not allowed in the current state.
// The caller holds mu.
func (g *Guest) stateError() error {
	switch {
	case g.state == StateDisposed:
		return ErrDisposed
	case g.state.linked():
		return ErrBusy
	default:
		return ErrNotReady
	}
}

// resetLink returns to Ready with an empty roster. The caller holds mu.
func (g *Guest) resetLink() {
	g.stopTimer()
	g.outbox.Reset()
	g.reasm.Reset()
	g.responded = false
	g.roster.clear()
	if g.local != nil {
		g.local = &Player{Name: g.local.Name}
	}
	g.state = StateReady
}

func (g *Guest) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// abort ends the current link after a failure. The caller holds mu.
func (g *Guest) abort(cause error) []notice {
	wasOnline := g.state == StateOnline
	g.log.Warn("disconnecting: %v", cause)
	g.resetLink()
	g.radio.Disconnect()
	if wasOnline {
		return []notice{noticeDisconnect()}
	}
	return []notice{noticeFail(cause)}
}

// ---------------------------------------------------------------------------
// Link events. Every method below runs inside dispatch with mu held.
// ---------------------------------------------------------------------------

func (g *Guest) onReady() []notice {
	if g.state != StateInitializing {
		return nil
	}
	g.state = StateReady
	g.log.Info("ready")
	return []notice{noticeReady()}
}

func (g *Guest) onFail(err error) []notice {
	cause := fmt.Errorf("%w: %w", ErrTransportFailure, err)
	switch {
	case g.state.linked():
		return g.abort(cause)
	case g.state == StateScanning:
		g.state = StateReady
	}
	g.log.Error("link failed: %v", err)
	return []notice{noticeFail(cause)}
}

func (g *Guest) onDiscover(name string, device radio.DeviceID) []notice {
	if g.state != StateScanning {
		return nil
	}
	return []notice{noticeDiscover(name, device)}
}

func (g *Guest) onConnect() []notice {
	if g.state != StateConnecting {
		g.log.Debug("stale connect in state %s", g.state)
		return nil
	}
	g.state = StateAuthenticating
	g.log.Debug("link up, awaiting challenge")
	return nil
}

func (g *Guest) onDisconnect() []notice {
	if !g.state.linked() {
		return nil
	}
	wasOnline := g.state == StateOnline
	g.resetLink()
	if wasOnline {
		g.log.Info("host closed the session")
		return []notice{noticeDisconnect()}
	}
	return []notice{noticeFail(fmt.Errorf("%w: link lost", ErrTransportFailure))}
}

func (g *Guest) onWritable() []notice {
	if !g.state.linked() {
		return nil
	}
	g.outbox.Ack()
	if err := g.pump(); err != nil {
		return g.abort(err)
	}
	return nil
}

func (g *Guest) onReceive(chunk []byte) []notice {
	if g.state != StateAuthenticating && g.state != StateOnline {
		return nil
	}
	util.Stats.AddRecv(len(chunk))

	frames, feedErr := g.reasm.Feed(chunk)
	var notices []notice
	for _, f := range frames {
		util.Stats.AddFrame()
		n, err := g.handleFrame(f)
		notices = append(notices, n...)
		if err != nil {
			return append(notices, g.abort(err)...)
		}
	}
	if feedErr != nil {
		return append(notices, g.abort(wrapFrameError(feedErr))...)
	}
	if !frame.More(chunk) && g.reasm.Buffered() > 0 {
		g.log.Debug("host idle with %d bytes of a frame held", g.reasm.Buffered())
	}
	return notices
}

// ---------------------------------------------------------------------------
// Frame handling
// ---------------------------------------------------------------------------

func (g *Guest) handleFrame(f frame.Frame) ([]notice, error) {
	if f.Address != protocol.ControlAddress {
		if g.state != StateOnline {
			return nil, fmt.Errorf("%w: data before admission", ErrProtocolViolation)
		}
		from := g.roster.get(address.Identity(f.Address))
		if from == nil {
			g.log.Warn("dropping message from unknown player %#04x", f.Address)
			return nil, nil
		}
		return []notice{noticeReceive(f.Payload, from)}, nil
	}

	msg, err := protocol.Decode(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}

	switch m := msg.(type) {
	case protocol.RequestAuthentication:
		if g.state != StateAuthenticating || g.responded {
			break
		}
		g.responded = true
		return nil, g.sendControl(protocol.RespondAuthentication{
			Digest: g.secrets.Respond(m.Nonce),
			Name:   g.local.Name,
		})

	case protocol.AcceptAuthentication:
		if g.state != StateAuthenticating || !g.responded {
			break
		}
		return g.admit(m)

	case protocol.PlayerJoin:
		if g.state != StateOnline {
			break
		}
		id := address.Identity(m.Identity)
		if !id.IsGuest() || g.roster.get(id) != nil || !validName(m.Name) {
			return nil, fmt.Errorf("%w: bad join for %#04x", ErrProtocolViolation, m.Identity)
		}
		p := &Player{ID: id, Name: m.Name}
		g.roster.add(p)
		g.log.Info("%q joined", p.Name)
		return []notice{noticeJoin(p)}, nil

	case protocol.PlayerLeave:
		if g.state != StateOnline {
			break
		}
		id := address.Identity(m.Identity)
		if id == g.local.ID {
			return nil, fmt.Errorf("%w: leave for self", ErrProtocolViolation)
		}
		p := g.roster.remove(id)
		if p == nil {
			g.log.Warn("leave for unknown player %#04x", m.Identity)
			return nil, nil
		}
		g.log.Info("%q left", p.Name)
		return []notice{noticeLeave(p)}, nil
	}

	return nil, fmt.Errorf("%w: unexpected control message %d in state %s", ErrProtocolViolation, msg.Type(), g.state)
}

// admit adopts the identity and roster the host assigned.
func (g *Guest) admit(m protocol.AcceptAuthentication) ([]notice, error) {
	id := address.Identity(m.Identity)
	if !id.IsGuest() {
		return nil, fmt.Errorf("%w: assigned identity %#04x", ErrProtocolViolation, m.Identity)
	}

	var seen uint16
	players := make([]*Player, 0, len(m.Players)+1)
	for _, e := range m.Players {
		pid := address.Identity(e.Identity)
		if !pid.Valid() || pid == id || seen&e.Identity != 0 || !validName(e.Name) {
			return nil, fmt.Errorf("%w: bad roster entry %#04x", ErrProtocolViolation, e.Identity)
		}
		seen |= e.Identity
		players = append(players, &Player{ID: pid, Name: e.Name})
	}

	g.stopTimer()
	g.local = &Player{ID: id, Name: g.local.Name}
	for _, p := range players {
		g.roster.add(p)
	}
	g.roster.add(g.local)
	g.state = StateOnline
	g.radio.Accept()
	g.log.Info("admitted as %s with %d other players", id, len(players))
	return []notice{noticeConnect()}, nil
}

// ---------------------------------------------------------------------------
// Link plumbing
// ---------------------------------------------------------------------------

func (g *Guest) sendControl(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	return g.enqueue(uint16(protocol.ControlAddress), data)
}

func (g *Guest) enqueue(addr uint16, payload []byte) error {
	if err := g.outbox.Enqueue(addr, payload); err != nil {
		return wrapFrameError(err)
	}
	return g.pump()
}

func (g *Guest) pump() error {
	if g.outbox.InFlight() {
		return nil
	}
	chunk, ok, err := g.outbox.Next(g.radio.MaxWriteSize())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	if !ok {
		return nil
	}
	if err := g.radio.Write(chunk); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	util.Stats.AddSent(len(chunk))
	return nil
}

// guestEvents adapts Guest to radio.CentralHandler.
type guestEvents struct{ g *Guest }

func (e guestEvents) OnBluetoothRequire() {
	e.g.dispatch(func() []notice { return []notice{noticeBluetoothRequire()} })
}

func (e guestEvents) OnReady() { e.g.dispatch(e.g.onReady) }

func (e guestEvents) OnFail(err error) {
	e.g.dispatch(func() []notice { return e.g.onFail(err) })
}

func (e guestEvents) OnDiscover(name string, device radio.DeviceID) {
	e.g.dispatch(func() []notice { return e.g.onDiscover(name, device) })
}

func (e guestEvents) OnConnect()    { e.g.dispatch(e.g.onConnect) }
func (e guestEvents) OnDisconnect() { e.g.dispatch(e.g.onDisconnect) }

func (e guestEvents) OnReceive(chunk []byte) {
	e.g.dispatch(func() []notice { return e.g.onReceive(chunk) })
}

func (e guestEvents) OnWritable() { e.g.dispatch(e.g.onWritable) }
