// Package config holds the CLI configuration, loaded from an optional YAML
// file and overridden by flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1ureka/blesock/internal/protocol"
	"github.com/1ureka/blesock/internal/radio"
)

// Role represents the user's chosen role.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

const (
	// DefaultMTU is the ATT MTU assumed for the network medium.
	DefaultMTU = 512
	// MinMTU is the BLE minimum.
	MinMTU = 23

	attHeaderSize = 3
)

// Config stores every parameter the commands accept.
type Config struct {
	Role              Role          `yaml:"role"`
	Protocol          string        `yaml:"protocol"`
	Player            string        `yaml:"player"`
	Device            string        `yaml:"device"`      // Host: advertised name
	SignalURL         string        `yaml:"signal_url"`  // Host/Guest: ws:// or wss:// URL of the signaling server
	Listen            string        `yaml:"listen"`      // Signal: listen address
	PIN               string        `yaml:"pin"`         // Signal: required PIN, Host/Guest: PIN presented
	MTU               int           `yaml:"mtu"`         // chunk size is MTU-3
	MaxPlayers        int           `yaml:"max_players"` // Host: roster cap, 0 for none
	AcceptanceTimeout time.Duration `yaml:"acceptance_timeout"`
	ICEServers        []string      `yaml:"ice_servers"`
	Debug             bool          `yaml:"debug"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Protocol:  "blesock-chat",
		SignalURL: "ws://127.0.0.1:7480/ws",
		Listen:    ":7480",
		MTU:       DefaultMTU,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Role {
	case "", RoleHost, RoleGuest:
	default:
		errs = append(errs, fmt.Errorf("invalid role %q: must be host or guest", c.Role))
	}
	if c.Protocol == "" {
		errs = append(errs, errors.New("protocol must not be empty"))
	}
	if len(c.Player) > protocol.NameLengthMax {
		errs = append(errs, fmt.Errorf("player name must be at most %d bytes", protocol.NameLengthMax))
	}
	if len(c.Device) > radio.DeviceNameMax {
		errs = append(errs, fmt.Errorf("device name must be at most %d bytes", radio.DeviceNameMax))
	}
	if c.MTU < MinMTU || c.MTU > DefaultMTU {
		errs = append(errs, fmt.Errorf("mtu must be %d ~ %d", MinMTU, DefaultMTU))
	}
	if c.MaxPlayers < 0 || c.MaxPlayers > 16 {
		errs = append(errs, errors.New("max players must be 0 ~ 16"))
	}
	if c.AcceptanceTimeout < 0 {
		errs = append(errs, errors.New("acceptance timeout must not be negative"))
	}
	if c.SignalURL != "" {
		if u, err := url.Parse(c.SignalURL); err != nil || u.Host == "" || (u.Scheme != "ws" && u.Scheme != "wss") {
			errs = append(errs, fmt.Errorf("invalid signal url: %s", c.SignalURL))
		}
	}
	return errors.Join(errs...)
}

// MaxWrite is the chunk size implied by MTU.
func (c Config) MaxWrite() int {
	return c.MTU - attHeaderSize
}

// DialURL returns SignalURL with the PIN attached.
func (c Config) DialURL() string {
	if c.PIN == "" {
		return c.SignalURL
	}
	u, err := url.Parse(c.SignalURL)
	if err != nil {
		return c.SignalURL
	}
	q := u.Query()
	q.Set("pin", c.PIN)
	u.RawQuery = q.Encode()
	return u.String()
}
