package session

import (
	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/protocol"
)

// Player is one participant of a session. The session owns ID and Name;
// LocalData is free for the application.
type Player struct {
	ID        address.Identity
	Name      string
	LocalData any
}

// roster keeps players in admission order.
type roster struct {
	players []*Player
}

func (r *roster) add(p *Player) {
	r.players = append(r.players, p)
}

func (r *roster) remove(id address.Identity) *Player {
	for i, p := range r.players {
		if p.ID == id {
			r.players = append(r.players[:i], r.players[i+1:]...)
			return p
		}
	}
	return nil
}

func (r *roster) get(id address.Identity) *Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *roster) len() int { return len(r.players) }

func (r *roster) list() []*Player {
	out := make([]*Player, len(r.players))
	copy(out, r.players)
	return out
}

func (r *roster) clear() {
	r.players = nil
}

// entries encodes the roster for an AcceptAuthentication message.
func (r *roster) entries() []protocol.PlayerEntry {
	out := make([]protocol.PlayerEntry, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, protocol.PlayerEntry{Identity: uint16(p.ID), Name: p.Name})
	}
	return out
}

// validName reports whether name is usable as a player name.
func validName(name string) bool {
	return name != "" && len(name) <= protocol.NameLengthMax
}
