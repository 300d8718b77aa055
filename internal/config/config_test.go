package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if got := cfg.ChannelTimeout(); got != 5*time.Second {
		t.Errorf("ChannelTimeout = %v, want 5s", got)
	}
	names := cfg.ChannelNames()
	if len(names) != 2 || names[0] != "message" || names[1] != "meta" {
		t.Errorf("ChannelNames = %v, want [message meta]", names)
	}
}

func TestParseRole(t *testing.T) {
	testCases := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "host", want: RoleHost},
		{in: "guest", want: RoleGuest},
		{in: "client", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseRole(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseRole(%q) expected error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRole(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRoleString(t *testing.T) {
	if RoleHost.String() != "Host" || RoleGuest.String() != "Guest" {
		t.Errorf("unexpected role display names: %s, %s", RoleHost, RoleGuest)
	}
}

func TestValidateRejectsDuplicateChannels(t *testing.T) {
	cfg := Default()
	cfg.Channels = append(cfg.Channels, Channel{Name: "message"})

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), `duplicate channel name "message"`) {
		t.Fatalf("Validate() = %v, want duplicate channel error", err)
	}
}

func TestValidateRejectsBadTimeout(t *testing.T) {
	cfg := Default()
	cfg.DataChannelWaitSec = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted a zero timeout")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.yaml")
	body := `role: guest
data_channel_wait_sec: 3
log_level: debug
channels:
  - name: chat
    ordered: false
    max_retransmits: 0
  - name: control
ice_servers: []
signaling:
  url: ws://127.0.0.1:9000/ws?pin=1234
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Role != RoleGuest {
		t.Errorf("Role = %q, want guest", cfg.Role)
	}
	if cfg.ChannelTimeout() != 3*time.Second {
		t.Errorf("ChannelTimeout = %v, want 3s", cfg.ChannelTimeout())
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("len(Channels) = %d, want 2", len(cfg.Channels))
	}

	init := cfg.Channels[0].DataChannelInit()
	if init == nil || init.Ordered == nil || *init.Ordered {
		t.Errorf("chat channel should be unordered, got %+v", init)
	}
	if init.MaxRetransmits == nil || *init.MaxRetransmits != 0 {
		t.Errorf("chat channel MaxRetransmits = %v, want 0", init.MaxRetransmits)
	}
	if cfg.Channels[1].DataChannelInit() != nil {
		t.Error("control channel without options should use transport defaults")
	}
	if got := cfg.WebRTCConfiguration(); len(got.ICEServers) != 0 {
		t.Errorf("empty ice_servers should yield host-only config, got %v", got.ICEServers)
	}
	if cfg.Signaling.URL != "ws://127.0.0.1:9000/ws?pin=1234" {
		t.Errorf("Signaling.URL = %q", cfg.Signaling.URL)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Role != RoleHost {
		t.Errorf("Role = %q, want host", cfg.Role)
	}
	if got := cfg.WebRTCConfiguration(); len(got.ICEServers) != 1 || len(got.ICEServers[0].URLs) != 2 {
		t.Errorf("default ICE config = %+v, want the two STUN servers", got.ICEServers)
	}
}
