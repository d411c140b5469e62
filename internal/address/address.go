// Package address defines player identities and multicast receiver masks.
//
// An Identity is a single set bit of a 16-bit mask. The host always owns
// bit 0; guests are assigned bits 1 through 15. A receiver Address is a
// mask of identities plus the Others flag, which stands for every player
// except the sender and is resolved at send time.
package address

import (
	"fmt"
	"math/bits"
)

// Identity is a player's one-bit address.
type Identity uint16

// Address selects a set of receivers.
type Address uint32

const (
	Host Identity = 1

	// All addresses every player, including the sender.
	All Address = 0xFFFF
	// Others addresses every player except the sender.
	Others Address = 0x10000

	maskBits Address = 0xFFFF
)

// Valid reports whether id has exactly one bit set.
func (id Identity) Valid() bool {
	return id != 0 && id&(id-1) == 0
}

func (id Identity) IsHost() bool { return id == Host }

// IsGuest reports whether id is a valid non-host identity.
func (id Identity) IsGuest() bool { return id.Valid() && id != Host }

// Index returns the bit position of id, or -1 if id is not valid.
func (id Identity) Index() int {
	if !id.Valid() {
		return -1
	}
	return bits.TrailingZeros16(uint16(id))
}

func (id Identity) String() string {
	if !id.Valid() {
		return fmt.Sprintf("invalid(%#04x)", uint16(id))
	}
	return fmt.Sprintf("#%d", id.Index())
}

// To returns the Address that selects exactly id.
func To(ids ...Identity) Address {
	var a Address
	for _, id := range ids {
		a |= Address(id)
	}
	return a
}

// Has reports whether the mask bits of a include id. Others is ignored.
func (a Address) Has(id Identity) bool {
	return uint16(a)&uint16(id) != 0
}

// Resolve turns a receiver Address into a concrete 16-bit mask as seen by
// the sender local. The result may contain bits of identities that are not
// currently allocated; delivery filters against the live set.
func Resolve(local Identity, receiver Address) uint16 {
	mask := receiver
	if receiver&Others != 0 {
		mask |= Address(^uint16(local))
	}
	return uint16(mask & maskBits)
}

// Split separates a resolved mask into the bits that must leave the device
// and whether the local player is itself a receiver.
func Split(mask uint16, local Identity) (remote uint16, self bool) {
	return mask &^ uint16(local), mask&uint16(local) != 0
}

// Members returns the valid identities selected by mask, lowest first.
func Members(mask uint16) []Identity {
	out := make([]Identity, 0, bits.OnesCount16(mask))
	for mask != 0 {
		low := mask & -mask
		out = append(out, Identity(low))
		mask &^= low
	}
	return out
}
