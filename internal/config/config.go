// Package config holds the peer configuration types and the YAML loader.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"
)

// Role is the negotiation role of a peer (host or guest). It never changes
// after construction.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// String returns the display form used in log prefixes ("Host", "Guest").
func (r Role) String() string {
	switch r {
	case RoleHost:
		return "Host"
	case RoleGuest:
		return "Guest"
	}
	return string(r)
}

// ParseRole accepts "host" or "guest".
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHost, RoleGuest:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role %q: must be 'host' or 'guest'", s)
}

// DefaultDataChannelWaitSec is the channel-open barrier timeout when the
// config does not set one.
const DefaultDataChannelWaitSec = 5

// STUN servers for ICE candidate gathering. No TURN by default.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Channel describes one labeled data channel. The delivery options are passed
// through to the transport untouched.
type Channel struct {
	Name              string  `yaml:"name"`
	Ordered           *bool   `yaml:"ordered,omitempty"`
	MaxRetransmits    *uint16 `yaml:"max_retransmits,omitempty"`
	MaxPacketLifeTime *uint16 `yaml:"max_packet_life_time,omitempty"`
	Protocol          string  `yaml:"protocol,omitempty"`
}

// DataChannelInit converts the channel options into pion's init struct. It
// returns nil when no option is set so the transport applies its defaults.
func (c Channel) DataChannelInit() *webrtc.DataChannelInit {
	if c.Ordered == nil && c.MaxRetransmits == nil && c.MaxPacketLifeTime == nil && c.Protocol == "" {
		return nil
	}
	init := &webrtc.DataChannelInit{
		Ordered:           c.Ordered,
		MaxRetransmits:    c.MaxRetransmits,
		MaxPacketLifeTime: c.MaxPacketLifeTime,
	}
	if c.Protocol != "" {
		protocol := c.Protocol
		init.Protocol = &protocol
	}
	return init
}

// Signaling locates the out-of-band relay used by networked peers.
type Signaling struct {
	URL string `yaml:"url"`           // Guest/Host: relay URL to connect to
	PIN string `yaml:"pin,omitempty"` // Relay: PIN required from clients
	SSE bool   `yaml:"sse,omitempty"` // use the SSE relay instead of WebSocket
}

// Config stores every parameter of a peer, gathered from a YAML file and
// then overridden by CLI flags.
type Config struct {
	Role               Role      `yaml:"role"`
	DataChannelWaitSec int       `yaml:"data_channel_wait_sec"`
	Channels           []Channel `yaml:"channels"`
	ICEServers         []string  `yaml:"ice_servers"`
	Signaling          Signaling `yaml:"signaling"`
	LogLevel           string    `yaml:"log_level"`
	Media              bool      `yaml:"media"` // attach a local test stream
}

// Default returns the configuration of the reference scenario: two channels
// ("message", "meta"), a 5 second barrier, Google STUN servers.
func Default() Config {
	return Config{
		Role:               RoleHost,
		DataChannelWaitSec: DefaultDataChannelWaitSec,
		Channels:           []Channel{{Name: "message"}, {Name: "meta"}},
		ICEServers:         append([]string(nil), DefaultSTUNServers...),
		LogLevel:           "info",
	}
}

// Load reads a YAML config file on top of Default. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the role, the timeout and channel name uniqueness.
func (c Config) Validate() error {
	var errs []error

	if _, err := ParseRole(string(c.Role)); err != nil {
		errs = append(errs, err)
	}
	if c.DataChannelWaitSec <= 0 {
		errs = append(errs, fmt.Errorf("data_channel_wait_sec must be positive, got %d", c.DataChannelWaitSec))
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			errs = append(errs, errors.New("channel name must not be empty"))
			continue
		}
		if seen[ch.Name] {
			errs = append(errs, fmt.Errorf("duplicate channel name %q", ch.Name))
		}
		seen[ch.Name] = true
	}

	return errors.Join(errs...)
}

// ChannelTimeout returns the barrier timeout as a duration.
func (c Config) ChannelTimeout() time.Duration {
	return time.Duration(c.DataChannelWaitSec) * time.Second
}

// ChannelNames lists the configured channel names in order.
func (c Config) ChannelNames() []string {
	names := make([]string, len(c.Channels))
	for i, ch := range c.Channels {
		names[i] = ch.Name
	}
	return names
}

// WebRTCConfiguration builds the pion configuration from the ICE server list.
func (c Config) WebRTCConfiguration() webrtc.Configuration {
	if len(c.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: c.ICEServers}},
	}
}
