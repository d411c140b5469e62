package address

import "math/bits"

// guestBits covers identities 1<<1 through 1<<15.
const guestBits uint16 = 0xFFFE

// Pool hands out guest identities. It is not safe for concurrent use; the
// host session owns it.
type Pool struct {
	used uint16
}

// NewPool returns a pool with all fifteen guest identities free.
func NewPool() *Pool {
	return &Pool{}
}

// Allocate takes the lowest free guest identity. It returns false when all
// fifteen are in use.
func (p *Pool) Allocate() (Identity, bool) {
	free := guestBits &^ p.used
	if free == 0 {
		return 0, false
	}
	id := Identity(free & -free)
	p.used |= uint16(id)
	return id, true
}

// Release returns id to the pool. Releasing a free or invalid identity is a
// no-op.
func (p *Pool) Release(id Identity) {
	if !id.IsGuest() {
		return
	}
	p.used &^= uint16(id)
}

// inUse reports whether id is currently allocated.
func (p *Pool) inUse(id Identity) bool {
	return id.IsGuest() && p.used&uint16(id) != 0
}

// Available returns how many identities can still be allocated.
func (p *Pool) Available() int {
	return bits.OnesCount16(guestBits &^ p.used)
}
