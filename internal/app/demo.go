package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/config"
	"github.com/1ureka/blesock/internal/radio/sim"
	"github.com/1ureka/blesock/internal/session"
	"github.com/1ureka/blesock/internal/util"
)

// DefaultBots are the guests RunDemo starts when none are named.
var DefaultBots = []string{"Bob", "Carol"}

// demo is a host and its echo bots sharing one simulated medium.
type demo struct {
	host *session.Host
	bots []*session.Guest
}

func (d *demo) close() {
	for _, g := range d.bots {
		g.Dispose()
	}
	d.host.Dispose()
}

// RunDemo runs a host and bot guests in one process over a simulated
// radio, then chats as the host. Bots echo whatever the host sends them.
func RunDemo(ctx context.Context, cfg config.Config, bots []string) error {
	if len(bots) == 0 {
		bots = DefaultBots
	}
	air := sim.NewAir(sim.WithMTU(cfg.MTU), sim.WithLatency(2*time.Millisecond))

	player := cfg.Player
	if player == "" {
		player = "Alice"
	}
	d, err := startDemo(ctx, air, cfg, player, bots, printer())
	if err != nil {
		return err
	}
	defer d.close()

	pterm.DefaultBox.WithTitle("blesock demo").Println(fmt.Sprintf(
		"Host : %s\nBots : %v\nMTU  : %d", player, bots, cfg.MTU))
	printPlayers(d.host)

	util.StartStatsReporter(ctx, statsInterval)
	return runChat(ctx, d.host, os.Stdin, nil)
}

// startDemo brings up the host on air and joins every bot to it. hostView
// is subscribed to the host before anything happens.
func startDemo(ctx context.Context, air *sim.Air, cfg config.Config, player string, bots []string, hostView session.Listener) (*demo, error) {
	h := session.NewHost(air.NewPeripheral(), sessionOptions(cfg.MaxPlayers, cfg.AcceptanceTimeout)...)
	d := &demo{host: h}

	lc := newLifecycle()
	h.Subscribe(lc.funcs())
	h.Subscribe(hostView)

	if err := h.Initialize(cfg.Protocol, player); err != nil {
		d.close()
		return nil, err
	}
	if err := lc.wait(ctx, lc.ready, "the host", readyTimeout); err != nil {
		d.close()
		return nil, err
	}
	if err := h.StartAdvertising(player); err != nil {
		d.close()
		return nil, err
	}

	for _, name := range bots {
		g, err := joinBot(ctx, air, cfg, name)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("bot %s: %w", name, err)
		}
		d.bots = append(d.bots, g)
	}
	return d, nil
}

// joinBot connects a guest named name to the first host it discovers.
func joinBot(ctx context.Context, air *sim.Air, cfg config.Config, name string) (*session.Guest, error) {
	g := session.NewGuest(air.NewCentral(), sessionOptions(0, cfg.AcceptanceTimeout)...)
	lc := newLifecycle()
	g.Subscribe(lc.funcs())
	g.Subscribe(session.Funcs{
		Receive: func(payload []byte, from *session.Player) {
			if !from.ID.IsHost() {
				return
			}
			reply := fmt.Sprintf("%s heard: %s", name, payload)
			if err := g.Send([]byte(reply), address.To(from.ID)); err != nil {
				util.LogWarning("[%s] echo failed: %v", name, err)
			}
		},
	})

	fail := func(err error) (*session.Guest, error) {
		g.Dispose()
		return nil, err
	}
	if err := g.Initialize(cfg.Protocol, name); err != nil {
		return fail(err)
	}
	if err := lc.wait(ctx, lc.ready, "the link", readyTimeout); err != nil {
		return fail(err)
	}
	if err := g.StartScan(); err != nil {
		return fail(err)
	}

	var d discovery
	select {
	case d = <-lc.found:
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-time.After(readyTimeout):
		return fail(fmt.Errorf("no host discovered"))
	}
	if err := g.Connect(d.device); err != nil {
		return fail(err)
	}
	if err := lc.wait(ctx, lc.online, "admission", connectTimeout); err != nil {
		return fail(err)
	}
	return g, nil
}
