// Package handshake derives the per-protocol identifiers and shared secret
// and implements the nonce challenge that admits a guest into a session.
package handshake

import (
	"crypto/sha1"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SecretSize is the length of the shared secret.
	SecretSize = 16
	// NonceSize is the length of the host's challenge.
	NonceSize = 16
	// DigestSize is the length of a challenge response.
	DigestSize = 32

	iterations = 1193
	keyLength  = 64
)

var salt = []byte{0x6d, 0x9f, 0x67, 0x59, 0x05, 0xc8, 0xbb, 0x21}

// ErrInvalidProtocolID is returned by Derive for an empty identifier.
var ErrInvalidProtocolID = errors.New("handshake: protocol identifier must not be empty")

// Secrets is everything derived from a protocol identifier. Peers that share
// the identifier derive identical Secrets.
type Secrets struct {
	Service  uuid.UUID
	Upload   uuid.UUID
	Download uuid.UUID
	secret   [SecretSize]byte
}

// Derive runs the key derivation for protocolID.
func Derive(protocolID string) (*Secrets, error) {
	if protocolID == "" {
		return nil, ErrInvalidProtocolID
	}
	key := pbkdf2.Key([]byte(protocolID), salt, iterations, keyLength, sha1.New)

	s := &Secrets{
		Service:  guidFromBytes(key[0:16]),
		Upload:   guidFromBytes(key[16:32]),
		Download: guidFromBytes(key[32:48]),
	}
	copy(s.secret[:], key[48:64])
	return s, nil
}

// guidFromBytes interprets b with the mixed-endian GUID layout: the first
// three groups are little-endian, the last eight bytes are taken as is.
func guidFromBytes(b []byte) uuid.UUID {
	var u uuid.UUID
	copy(u[:], b)
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	return u
}
