// Package app wires the OpenFang subsystems together: channel adapters, the
// router, the peer wire server, and the credential vault. It implements the
// bridge loop — inbound message arrives on an adapter, the router resolves a
// target agent, and the message is handed to that agent's inbox — without
// implementing the agent reasoning loop itself (out of scope, see
// SPEC_FULL.md's non-goals).
package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openfang/openfang/internal/openfang/channel/adapters"
	"github.com/openfang/openfang/internal/openfang/router"
)

// Config is the root OpenFang configuration, loaded from a single YAML file.
type Config struct {
	// VaultPath is the path to the encrypted credential vault file.
	VaultPath string `yaml:"vault_path"`

	// StorePath is the path to the per-agent KV/audit SQLite database. Empty
	// disables persistence: dispatches still happen, they just aren't logged.
	StorePath string `yaml:"store_path"`

	// PeerWire configures the local OFP server that lets other OpenFang
	// nodes exchange agent messages with this one.
	PeerWire PeerWireConfig `yaml:"peer_wire"`

	// Channels enumerates the enabled adapters by tag. Only non-nil entries
	// are started.
	Channels ChannelsConfig `yaml:"channels"`

	// Router configures binding rules, direct routes, user defaults, the
	// system default agent, and broadcast groups.
	Router RouterConfig `yaml:"router"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// PeerWireConfig configures the OFP listener.
type PeerWireConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // e.g. ":7700"
	Token   string `yaml:"token"`
}

// ChannelsConfig holds the per-platform adapter configuration. A nil pointer
// means that platform is disabled.
type ChannelsConfig struct {
	Telegram *adapters.TelegramConfig `yaml:"telegram"`
	Slack    *adapters.SlackConfig    `yaml:"slack"`
	IRC      *adapters.IRCConfig      `yaml:"irc"`
	Mumble   *adapters.MumbleConfig   `yaml:"mumble"`
	Nostr    *adapters.NostrConfig    `yaml:"nostr"`
	Ntfy     *adapters.NtfyConfig     `yaml:"ntfy"`
	Viber    *adapters.ViberConfig    `yaml:"viber"`
	Matrix   *adapters.MatrixConfig   `yaml:"-"` // carries an optional *sql.DB; wired programmatically, not from YAML
}

// RouterConfig is the YAML-serialisable form of the router's rule set.
type RouterConfig struct {
	Bindings     []router.BindingRule              `yaml:"bindings"`
	DirectRoutes []DirectRouteConfig               `yaml:"direct_routes"`
	UserDefaults map[string]string                 `yaml:"user_defaults"`
	Broadcast    map[string]router.BroadcastConfig `yaml:"broadcast"`
	DefaultAgent string                             `yaml:"default_agent"`
}

// DirectRouteConfig is one (channel, platform user id) -> agent mapping.
type DirectRouteConfig struct {
	Channel        string `yaml:"channel"`
	PlatformUserID string `yaml:"platform_user_id"`
	Agent          string `yaml:"agent"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("app: parse config %s: %w", path, err)
	}
	return &cfg, nil
}
