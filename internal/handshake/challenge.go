package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// Challenge is the host's pending authentication for one connection.
// It can be verified once.
type Challenge struct {
	Nonce    [NonceSize]byte
	expected [DigestSize]byte
	used     bool
}

// NewChallenge draws a fresh nonce and precomputes the expected digest.
// Every nonce byte is non-zero.
func NewChallenge(s *Secrets) (*Challenge, error) {
	c := &Challenge{}
	if err := nonZeroBytes(c.Nonce[:]); err != nil {
		return nil, fmt.Errorf("handshake: draw nonce: %w", err)
	}
	c.expected = s.Respond(c.Nonce)
	return c, nil
}

// Verify compares digest with the expected response in constant time.
// Subsequent calls always fail.
func (c *Challenge) Verify(digest []byte) bool {
	if c.used {
		return false
	}
	c.used = true
	return len(digest) == DigestSize && subtle.ConstantTimeCompare(digest, c.expected[:]) == 1
}

// Respond computes the guest's answer to nonce: SHA-256(secret ∥ nonce).
func (s *Secrets) Respond(nonce [NonceSize]byte) [DigestSize]byte {
	h := sha256.New()
	h.Write(s.secret[:])
	h.Write(nonce[:])
	var out [DigestSize]byte
	h.Sum(out[:0])
	return out
}

func nonZeroBytes(b []byte) error {
	if _, err := rand.Read(b); err != nil {
		return err
	}
	var one [1]byte
	for i := range b {
		for b[i] == 0 {
			if _, err := rand.Read(one[:]); err != nil {
				return err
			}
			b[i] = one[0]
		}
	}
	return nil
}
