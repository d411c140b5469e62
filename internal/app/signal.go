package app

import (
	"context"
	"fmt"
	"net"

	"github.com/pterm/pterm"

	"github.com/1ureka/blesock/internal/config"
	"github.com/1ureka/blesock/internal/signaling"
	"github.com/1ureka/blesock/internal/util"
)

// RunSignal serves the signaling server on cfg.Listen until ctx ends.
func RunSignal(ctx context.Context, cfg config.Config) error {
	var opts []signaling.ServerOption
	if cfg.PIN != "" {
		opts = append(opts, signaling.WithPIN(cfg.PIN))
	}
	srv := signaling.NewServer(opts...)

	ready := make(chan net.Addr, 1)
	go func() {
		select {
		case addr := <-ready:
			pin := cfg.PIN
			if pin == "" {
				pin = "(none)"
			}
			pterm.DefaultBox.WithTitle("blesock signaling").Println(fmt.Sprintf(
				"Address : %s\nPeers   : ws://%s/ws\nMetrics : http://%s/metrics\nPIN     : %s",
				addr, addr, addr, pin))
		case <-ctx.Done():
		}
	}()

	if err := srv.ListenAndServe(ctx, cfg.Listen, ready); err != nil {
		return err
	}
	util.LogInfo("signaling server stopped")
	return nil
}
