package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityValid(t *testing.T) {
	assert.True(t, Host.Valid())
	assert.True(t, Identity(1<<15).Valid())
	assert.False(t, Identity(0).Valid())
	assert.False(t, Identity(3).Valid())

	assert.True(t, Identity(2).IsGuest())
	assert.False(t, Host.IsGuest())
	assert.Equal(t, 4, Identity(1<<4).Index())
	assert.Equal(t, -1, Identity(6).Index())
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		local    Identity
		receiver Address
		want     uint16
	}{
		{"all from host", Host, All, 0xFFFF},
		{"others from host", Host, Others, 0xFFFE},
		{"others from guest", 1 << 3, Others, 0xFFF7},
		{"others plus self is all", 1 << 3, Others | To(1<<3), 0xFFFF},
		{"host only", 1 << 2, To(Host), 0x0001},
		{"unicast", Host, To(1 << 5), 1 << 5},
		{"upper bits dropped", Host, Address(0x30002), 0x0002 | 0xFFFE},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.local, tt.receiver))
		})
	}
}

func TestSplit(t *testing.T) {
	remote, self := Split(Resolve(1<<2, All), 1<<2)
	assert.Equal(t, uint16(0xFFFB), remote)
	assert.True(t, self)

	remote, self = Split(Resolve(1<<2, Others), 1<<2)
	assert.Equal(t, uint16(0xFFFB), remote)
	assert.False(t, self)

	remote, self = Split(Resolve(Host, To(Host)), Host)
	assert.Zero(t, remote)
	assert.True(t, self)
}

func TestMembers(t *testing.T) {
	assert.Equal(t, []Identity{1, 4, 1 << 15}, Members(0x8005))
	assert.Empty(t, Members(0))
}

func TestPoolAllocatesLowestFree(t *testing.T) {
	p := NewPool()
	require.Equal(t, 15, p.Available())

	var got []Identity
	for range 15 {
		id, ok := p.Allocate()
		require.True(t, ok)
		require.True(t, id.IsGuest())
		got = append(got, id)
	}
	assert.Equal(t, Identity(1<<1), got[0])
	assert.Equal(t, Identity(1<<15), got[14])

	_, ok := p.Allocate()
	assert.False(t, ok, "pool should be exhausted")

	p.Release(1 << 7)
	p.Release(1 << 3)
	assert.Equal(t, 2, p.Available())

	id, ok := p.Allocate()
	require.True(t, ok)
	assert.Equal(t, Identity(1<<3), id)
	assert.True(t, p.inUse(1<<3))
	assert.False(t, p.inUse(1<<7))
}

func TestPoolIgnoresHostAndInvalid(t *testing.T) {
	p := NewPool()
	id, _ := p.Allocate()
	p.Release(Host)
	p.Release(Identity(3))
	assert.True(t, p.inUse(id))
	assert.Equal(t, 14, p.Available())
}
