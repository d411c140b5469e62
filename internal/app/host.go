package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/blesock/internal/config"
	"github.com/1ureka/blesock/internal/signaling"
	"github.com/1ureka/blesock/internal/session"
	"github.com/1ureka/blesock/internal/util"
)

const (
	readyTimeout  = 10 * time.Second
	statsInterval = 5 * time.Second
)

// RunHost orchestrates the host lifecycle:
//  1. Connect to the signaling server as a peripheral
//  2. Initialize the session and wait for it to be ready
//  3. Advertise under the configured device name
//  4. Chat until /quit or shutdown
func RunHost(ctx context.Context, cfg config.Config) error {
	p := signaling.NewPeripheral(ctx, cfg.DialURL(), signaling.Options{
		MaxWrite:   cfg.MaxWrite(),
		ICEServers: cfg.ICEServers,
	})
	h := session.NewHost(p, sessionOptions(cfg.MaxPlayers, cfg.AcceptanceTimeout)...)
	defer h.Dispose()

	lc := newLifecycle()
	h.Subscribe(lc.funcs())
	h.Subscribe(printer())

	if err := h.Initialize(cfg.Protocol, cfg.Player); err != nil {
		return err
	}
	if err := lc.wait(ctx, lc.ready, "the link", readyTimeout); err != nil {
		return fmt.Errorf("host not ready: %w", err)
	}

	device := cfg.Device
	if device == "" {
		device = cfg.Player
	}
	if err := h.StartAdvertising(device); err != nil {
		return err
	}

	pterm.DefaultBox.WithTitle("blesock host").Println(fmt.Sprintf(
		"Player : %s\nDevice : %s\nServer : %s", cfg.Player, device, cfg.SignalURL))
	util.LogSuccess("advertising, waiting for guests")

	util.StartStatsReporter(ctx, statsInterval)
	return runChat(ctx, h, os.Stdin, nil)
}
