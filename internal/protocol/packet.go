// Package protocol defines the control messages exchanged between a host and
// its guests. Control messages travel as frames with address 0.
package protocol

import "github.com/1ureka/blesock/internal/handshake"

// Message type codes.
const (
	TypeRequestAuthentication uint8 = 10 // host → guest
	TypeAcceptAuthentication  uint8 = 11 // host → guest
	TypePlayerJoin            uint8 = 12 // host → guest
	TypePlayerLeave           uint8 = 13 // host → guest
	TypeRespondAuthentication uint8 = 20 // guest → host
)

// ControlAddress is the frame address reserved for control traffic.
const ControlAddress uint16 = 0

// NameLengthMax bounds player names in bytes.
const NameLengthMax = 32

// Message is one decoded control message.
type Message interface {
	Type() uint8
}

// RequestAuthentication carries the host's challenge nonce.
type RequestAuthentication struct {
	Nonce [handshake.NonceSize]byte
}

// RespondAuthentication carries the guest's digest and player name.
type RespondAuthentication struct {
	Digest [handshake.DigestSize]byte
	Name   string
}

// PlayerEntry is one roster line.
type PlayerEntry struct {
	Identity uint16
	Name     string
}

// AcceptAuthentication admits a guest: its own identity and the roster of
// players already present.
type AcceptAuthentication struct {
	Identity uint16
	Players  []PlayerEntry
}

// PlayerJoin announces a newly admitted player.
type PlayerJoin struct {
	Identity uint16
	Name     string
}

// PlayerLeave announces a departed player.
type PlayerLeave struct {
	Identity uint16
}

func (RequestAuthentication) Type() uint8 { return TypeRequestAuthentication }
func (RespondAuthentication) Type() uint8 { return TypeRespondAuthentication }
func (AcceptAuthentication) Type() uint8  { return TypeAcceptAuthentication }
func (PlayerJoin) Type() uint8            { return TypePlayerJoin }
func (PlayerLeave) Type() uint8           { return TypePlayerLeave }
