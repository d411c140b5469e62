package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blesock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
role: host
player: Alice
device: Alice's room
max_players: 4
acceptance_timeout: 5s
ice_servers:
  - stun:stun.example.org:3478
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RoleHost, cfg.Role)
	assert.Equal(t, "Alice", cfg.Player)
	assert.Equal(t, "Alice's room", cfg.Device)
	assert.Equal(t, 4, cfg.MaxPlayers)
	assert.Equal(t, 5*time.Second, cfg.AcceptanceTimeout)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, cfg.ICEServers)
	assert.Equal(t, "blesock-chat", cfg.Protocol, "unset fields keep their default")
	assert.Equal(t, DefaultMTU-3, cfg.MaxWrite())
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blesock.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colour: blue\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"guest", func(c *Config) { c.Role = RoleGuest }, true},
		{"bad role", func(c *Config) { c.Role = "observer" }, false},
		{"empty protocol", func(c *Config) { c.Protocol = "" }, false},
		{"long player", func(c *Config) { c.Player = "abcdefghijklmnopqrstuvwxyz0123456" }, false},
		{"long device", func(c *Config) { c.Device = "abcdefghijklmnopqrstuvwxyz01" }, false},
		{"small mtu", func(c *Config) { c.MTU = 22 }, false},
		{"minimum mtu", func(c *Config) { c.MTU = MinMTU }, true},
		{"too many players", func(c *Config) { c.MaxPlayers = 17 }, false},
		{"negative timeout", func(c *Config) { c.AcceptanceTimeout = -time.Second }, false},
		{"http url", func(c *Config) { c.SignalURL = "http://example.org/ws" }, false},
		{"no signal url", func(c *Config) { c.SignalURL = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestDialURL(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ws://127.0.0.1:7480/ws", cfg.DialURL())

	cfg.PIN = "2468"
	assert.Equal(t, "ws://127.0.0.1:7480/ws?pin=2468", cfg.DialURL())
}
