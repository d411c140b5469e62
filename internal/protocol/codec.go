package protocol

import (
	"errors"
	"fmt"

	"github.com/1ureka/blesock/internal/buffer"
	"github.com/1ureka/blesock/internal/handshake"
)

var (
	ErrUnknownType = errors.New("protocol: unknown message type")
	ErrMalformed   = errors.New("protocol: malformed message")
	ErrRosterSize  = errors.New("protocol: roster too large")
)

// Encode serializes msg with its leading type byte.
func Encode(msg Message) ([]byte, error) {
	b := buffer.New()
	b.WriteU8(msg.Type())

	switch m := msg.(type) {
	case RequestAuthentication:
		b.WriteBytes(m.Nonce[:])

	case RespondAuthentication:
		b.WriteBytes(m.Digest[:])
		if err := b.WriteShortString(m.Name); err != nil {
			return nil, fmt.Errorf("encode name: %w", err)
		}

	case AcceptAuthentication:
		if len(m.Players) > 0xFF {
			return nil, ErrRosterSize
		}
		b.WriteU16(m.Identity)
		b.WriteU8(uint8(len(m.Players)))
		for _, p := range m.Players {
			b.WriteU16(p.Identity)
			if err := b.WriteShortString(p.Name); err != nil {
				return nil, fmt.Errorf("encode roster name: %w", err)
			}
		}

	case PlayerJoin:
		b.WriteU16(m.Identity)
		if err := b.WriteShortString(m.Name); err != nil {
			return nil, fmt.Errorf("encode name: %w", err)
		}

	case PlayerLeave:
		b.WriteU16(m.Identity)

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
	return b.Bytes(), nil
}

// Decode parses one control message. Trailing bytes are ignored.
func Decode(data []byte) (Message, error) {
	b := buffer.NewFrom(data)
	typ, err := b.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("%w: empty message", ErrMalformed)
	}

	msg, err := decodeBody(typ, b)
	if err != nil {
		if errors.Is(err, buffer.ErrBufferUnderrun) {
			return nil, fmt.Errorf("%w: type %d: %w", ErrMalformed, typ, err)
		}
		return nil, err
	}
	return msg, nil
}

func decodeBody(typ uint8, b *buffer.Buffer) (Message, error) {
	switch typ {
	case TypeRequestAuthentication:
		raw, err := b.ReadBytes(handshake.NonceSize)
		if err != nil {
			return nil, err
		}
		var m RequestAuthentication
		copy(m.Nonce[:], raw)
		return m, nil

	case TypeRespondAuthentication:
		raw, err := b.ReadBytes(handshake.DigestSize)
		if err != nil {
			return nil, err
		}
		name, err := b.ReadShortString()
		if err != nil {
			return nil, err
		}
		m := RespondAuthentication{Name: name}
		copy(m.Digest[:], raw)
		return m, nil

	case TypeAcceptAuthentication:
		id, err := b.ReadU16()
		if err != nil {
			return nil, err
		}
		count, err := b.ReadU8()
		if err != nil {
			return nil, err
		}
		m := AcceptAuthentication{Identity: id, Players: make([]PlayerEntry, 0, count)}
		for range count {
			pid, err := b.ReadU16()
			if err != nil {
				return nil, err
			}
			name, err := b.ReadShortString()
			if err != nil {
				return nil, err
			}
			m.Players = append(m.Players, PlayerEntry{Identity: pid, Name: name})
		}
		return m, nil

	case TypePlayerJoin:
		id, err := b.ReadU16()
		if err != nil {
			return nil, err
		}
		name, err := b.ReadShortString()
		if err != nil {
			return nil, err
		}
		return PlayerJoin{Identity: id, Name: name}, nil

	case TypePlayerLeave:
		id, err := b.ReadU16()
		if err != nil {
			return nil, err
		}
		return PlayerLeave{Identity: id}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
}
