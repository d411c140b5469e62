package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/blesock/internal/config"
	"github.com/1ureka/blesock/internal/session"
	"github.com/1ureka/blesock/internal/signaling"
	"github.com/1ureka/blesock/internal/util"
)

const (
	scanWindow     = 3 * time.Second
	connectTimeout = 30 * time.Second
)

// RunGuest orchestrates the guest lifecycle:
//  1. Connect to the signaling server as a central
//  2. Scan for hosts of the configured protocol
//  3. Let the user pick one and join it
//  4. Chat until /quit, shutdown or the host goes away
func RunGuest(ctx context.Context, cfg config.Config) error {
	c := signaling.NewCentral(ctx, cfg.DialURL(), signaling.Options{
		MaxWrite:   cfg.MaxWrite(),
		ICEServers: cfg.ICEServers,
	})
	g := session.NewGuest(c, sessionOptions(0, cfg.AcceptanceTimeout)...)
	defer g.Dispose()

	lc := newLifecycle()
	g.Subscribe(lc.funcs())
	g.Subscribe(printer())

	if err := g.Initialize(cfg.Protocol, cfg.Player); err != nil {
		return err
	}
	if err := lc.wait(ctx, lc.ready, "the link", readyTimeout); err != nil {
		return fmt.Errorf("guest not ready: %w", err)
	}

	if err := g.StartScan(); err != nil {
		return err
	}
	spinner, _ := pterm.DefaultSpinner.Start("scanning for hosts...")
	found, err := collect(ctx, lc.found, scanWindow)
	spinner.Stop()
	if err != nil {
		return err
	}
	if err := g.StopScan(); err != nil {
		return err
	}

	target, err := pick(found)
	if err != nil {
		return err
	}

	if err := g.Connect(target.device); err != nil {
		return err
	}
	if err := lc.wait(ctx, lc.online, "admission", connectTimeout); err != nil {
		return fmt.Errorf("failed to join %s: %w", target.name, err)
	}
	util.LogSuccess("joined %s as %s", target.name, g.LocalIdentity())
	printPlayers(g)

	util.StartStatsReporter(ctx, statsInterval)
	err = runChat(ctx, g, os.Stdin, lc.offline)
	select {
	case <-lc.offline:
		util.LogWarning("disconnected from %s", target.name)
	default:
		g.Disconnect()
	}
	return err
}

// collect gathers discoveries for window, dropping repeats of a device.
func collect(ctx context.Context, found <-chan discovery, window time.Duration) ([]discovery, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	var out []discovery
	seen := make(map[discovery]bool)
	for {
		select {
		case d := <-found:
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		case <-timer.C:
			return out, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// pick asks the user which host to join. A single host is joined directly.
func pick(found []discovery) (discovery, error) {
	switch len(found) {
	case 0:
		return discovery{}, errors.New("no hosts found")
	case 1:
		return found[0], nil
	}

	options := make([]string, len(found))
	byOption := make(map[string]discovery, len(found))
	for i, d := range found {
		options[i] = fmt.Sprintf("%s  (device %d)", d.name, d.device)
		byOption[options[i]] = d
	}
	choice, err := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText("Select a host").
		Show()
	if err != nil {
		return discovery{}, err
	}
	pterm.Println()
	return byOption[choice], nil
}
