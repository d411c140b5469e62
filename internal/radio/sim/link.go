package sim

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/1ureka/blesock/internal/radio"
)

// link is one connection between a Peripheral and a Central. up carries
// central writes, down carries peripheral writes.
type link struct {
	id       radio.ConnectionID
	p        *Peripheral
	c        *Central
	ph       radio.PeripheralHandler
	ch       radio.CentralHandler
	identity uint16
	accepted bool
	cancel   context.CancelFunc
	up       *pipe
	down     *pipe
}

// newLink wires a link and starts its pipes. The caller holds a.mu.
func (a *Air) newLink(p *Peripheral, c *Central) *link {
	a.nextConn++
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		id:     a.nextConn,
		p:      p,
		c:      c,
		ph:     p.h,
		ch:     c.h,
		cancel: cancel,
	}
	id := l.id
	l.up = a.newPipe(ctx,
		func(b []byte) { l.ph.OnReceive(id, b) },
		func() { l.ch.OnWritable() })
	l.down = a.newPipe(ctx,
		func(b []byte) { l.ch.OnReceive(b) },
		func() { l.ph.OnWritable(id) })
	go l.up.run()
	go l.down.run()
	return l
}

func (l *link) centralGone()    { l.ch.OnDisconnect() }
func (l *link) peripheralGone() { l.ph.OnDisconnect(l.id) }

// pipe moves chunks in one direction. busy gates writes so at most one
// chunk is queued or being transmitted.
type pipe struct {
	ctx     context.Context
	queue   chan []byte
	busy    atomic.Bool
	latency time.Duration
	limiter *rate.Limiter
	deliver func([]byte)
	ack     func()
}

func (a *Air) newPipe(ctx context.Context, deliver func([]byte), ack func()) *pipe {
	p := &pipe{
		ctx:     ctx,
		queue:   make(chan []byte, 1),
		latency: a.latency,
		deliver: deliver,
		ack:     ack,
	}
	if a.bandwidth > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(a.bandwidth), a.maxWrite())
	}
	return p
}

func (p *pipe) write(chunk []byte) error {
	if p.ctx.Err() != nil {
		return radio.ErrNotConnected
	}
	if !p.busy.CompareAndSwap(false, true) {
		return radio.ErrWriteInFlight
	}
	p.queue <- append([]byte(nil), chunk...)
	return nil
}

func (p *pipe) run() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case chunk := <-p.queue:
			if !p.transmit(chunk) {
				return
			}
		}
	}
}

func (p *pipe) transmit(chunk []byte) bool {
	if p.latency > 0 {
		t := time.NewTimer(p.latency)
		select {
		case <-p.ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
	if p.limiter != nil {
		if err := p.limiter.WaitN(p.ctx, len(chunk)); err != nil {
			return false
		}
	}
	if p.ctx.Err() != nil {
		return false
	}
	p.deliver(chunk)
	p.busy.Store(false)
	p.ack()
	return true
}
