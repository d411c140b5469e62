package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/blesock/internal/address"
)

type failingListener struct {
	Funcs
	err     error
	explode bool
}

func (l failingListener) OnReady() error {
	if l.explode {
		panic("listener exploded")
	}
	return l.err
}

func TestListenerFailuresDoNotStopDelivery(t *testing.T) {
	n := newTestNet()
	h := NewHost(n.host, WithExecutor(n.q))

	h.Subscribe(failingListener{err: errors.New("nope")})
	h.Subscribe(failingListener{explode: true})
	rec := &recorder{}
	h.Subscribe(rec.funcs())

	require.NoError(t, h.Initialize("Proto", "Alice"))
	n.run()
	assert.Equal(t, 1, rec.ready)
	assert.True(t, h.IsReady())
}

func TestUnsubscribe(t *testing.T) {
	n := newTestNet()
	h := NewHost(n.host, WithExecutor(n.q))
	first, second := &recorder{}, &recorder{}
	unsubscribe := h.Subscribe(first.funcs())
	h.Subscribe(second.funcs())

	unsubscribe()
	unsubscribe()
	assert.NotNil(t, h.Subscribe(nil))

	require.NoError(t, h.Initialize("Proto", "Alice"))
	n.run()
	assert.Zero(t, first.ready)
	assert.Equal(t, 1, second.ready)
}

func TestNotificationsInOrder(t *testing.T) {
	n := newTestNet()
	h, _ := startHost(t, n)

	var got []string
	h.Subscribe(Funcs{Receive: func(payload []byte, _ *Player) { got = append(got, string(payload)) }})
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, h.Send([]byte(s), address.To(address.Host)))
	}
	assert.Empty(t, got, "local delivery is posted, not synchronous")
	n.run()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestReceivedPayloadIsCopied(t *testing.T) {
	n := newTestNet()
	h, rec := startHost(t, n)

	buf := []byte("abc")
	require.NoError(t, h.Send(buf, address.To(address.Host)))
	buf[0] = 'x'
	n.run()
	require.Len(t, rec.received, 1)
	assert.Equal(t, []byte("abc"), rec.received[0].payload)
}

func TestFuncsNilFields(t *testing.T) {
	var f Funcs
	assert.NoError(t, f.OnReady())
	assert.NoError(t, f.OnFail(errors.New("x")))
	assert.NoError(t, f.OnReceive(nil, nil))
	assert.NoError(t, f.OnPlayerJoin(nil))
}
