// blesock: CLI entry point.
//
// Peers exchange chat messages over a small-MTU, connection-oriented link.
// The link is either a simulated radio (demo) or WebRTC DataChannels set up
// through a WebSocket signaling server (signal, host, guest).
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/blesock/internal/app"
	"github.com/1ureka/blesock/internal/config"
	"github.com/1ureka/blesock/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// cli is shared by every command: the loaded configuration and the flags
// that override it.
type cli struct {
	configPath string
	debug      bool
	cfg        config.Config

	protocol   string
	player     string
	device     string
	signalURL  string
	listen     string
	pin        string
	mtu        int
	maxPlayers int
	timeout    time.Duration
	ice        []string
}

func rootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "blesock",
		Short: "Peer messaging over a small-MTU link",
		Long: `blesock runs a host and guests that authenticate with a shared protocol
identifier and exchange addressed messages of up to 4096 bytes, split into
link-sized chunks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		signalCmd(c),
		hostCmd(c),
		guestCmd(c),
		demoCmd(c),
		versionCmd(),
	)
	return root
}

// load reads the configuration file and applies the flags the user set.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("protocol", func() { cfg.Protocol = c.protocol })
	set("player", func() { cfg.Player = c.player })
	set("device", func() { cfg.Device = c.device })
	set("signal", func() { cfg.SignalURL = c.signalURL })
	set("listen", func() { cfg.Listen = c.listen })
	set("pin", func() { cfg.PIN = c.pin })
	set("mtu", func() { cfg.MTU = c.mtu })
	set("max-players", func() { cfg.MaxPlayers = c.maxPlayers })
	set("timeout", func() { cfg.AcceptanceTimeout = c.timeout })
	set("ice", func() { cfg.ICEServers = c.ice })
	if c.debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Debug {
		util.EnableDebug()
	}
	c.cfg = cfg
	return nil
}

func (c *cli) sessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&c.protocol, "protocol", "", "Protocol identifier shared by host and guests")
	f.StringVarP(&c.player, "player", "p", "", "Player name (1~32 bytes)")
	f.IntVar(&c.mtu, "mtu", 0, "ATT MTU; chunks carry MTU-3 bytes")
	f.DurationVar(&c.timeout, "timeout", 0, "Authentication deadline (0 = default)")
}

func (c *cli) networkFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&c.signalURL, "signal", "s", "", "Signaling server URL (ws:// or wss://)")
	f.StringVar(&c.pin, "pin", "", "PIN presented to the signaling server")
	f.StringSliceVar(&c.ice, "ice", nil, "STUN/TURN server URLs")
}

func signalCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Run the signaling server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunSignal(cmd.Context(), c.cfg)
		},
	}
	cmd.Flags().StringVarP(&c.listen, "listen", "l", "", "Listen address, e.g. :7480")
	cmd.Flags().StringVar(&c.pin, "pin", "", "Require this PIN from peers")
	return cmd
}

func hostCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a session and chat with the guests that join",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunHost(cmd.Context(), c.cfg)
		},
	}
	c.sessionFlags(cmd)
	c.networkFlags(cmd)
	cmd.Flags().StringVarP(&c.device, "device", "d", "", "Advertised device name (defaults to the player name)")
	cmd.Flags().IntVar(&c.maxPlayers, "max-players", 0, "Roster cap including the host (0 = 16)")
	return cmd
}

func guestCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guest",
		Short: "Scan for a host, join it and chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunGuest(cmd.Context(), c.cfg)
		},
	}
	c.sessionFlags(cmd)
	c.networkFlags(cmd)
	return cmd
}

func demoCmd(c *cli) *cobra.Command {
	var bots []string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Chat as a host with echo bots over a simulated radio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunDemo(cmd.Context(), c.cfg, bots)
		},
	}
	c.sessionFlags(cmd)
	cmd.Flags().StringSliceVar(&bots, "bots", nil, "Bot names (default Bob,Carol)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			pterm.Info.Printfln("blesock %s", version)
		},
	}
}
