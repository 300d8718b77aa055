package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/peerlink/internal/config"
	"github.com/1ureka/peerlink/internal/peer"
	"github.com/1ureka/peerlink/internal/signaling"
	"github.com/1ureka/peerlink/internal/util"
)

// runPeer joins a networked session. Without --url the Host runs its own
// WebSocket relay and waits for the Guest to join before negotiating.
func runPeer(ctx context.Context, role config.Role, args []string) error {
	var flags commonFlags
	fs := pflag.NewFlagSet(string(role), pflag.ContinueOnError)
	flags.addFlags(fs)
	relayURL := fs.String("url", "", "relay URL (ws://host:port/ws?pin=... or http://host:port/?pin=... with --sse)")
	sse := fs.Bool("sse", false, "the relay at --url is an SSE relay")
	listen := fs.String("listen", ":0", "host only: address of the embedded relay when --url is empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	cfg.Role = role
	if *relayURL != "" {
		cfg.Signaling.URL = *relayURL
	}
	if *sse {
		cfg.Signaling.SSE = true
	}
	if len(cfg.Channels) == 0 {
		return errors.New("at least one channel must be configured")
	}

	banner(role.String())

	var waitForGuest func() error
	if cfg.Signaling.URL == "" {
		if role != config.RoleHost {
			return errors.New("missing --url for guest")
		}
		pin := cfg.Signaling.PIN
		if pin == "" {
			pin = signaling.GeneratePIN(6)
		}
		relay := signaling.NewRelay(pin)
		port, err := relay.Start(*listen)
		if err != nil {
			return err
		}
		defer relay.Close()

		cfg.Signaling.URL = fmt.Sprintf("ws://127.0.0.1:%d/ws?pin=%s", port, pin)
		pterm.Info.Printfln("Share with the guest: --url ws://<this-host>:%d/ws?pin=%s", port, pin)
		waitForGuest = func() error { return waitClients(ctx, relay) }
	}

	bus, err := dialBus(ctx, cfg.Signaling)
	if err != nil {
		return err
	}
	defer bus.Close()

	setup := peerSetup{cfg: cfg, bus: bus}
	setup.onMessage = func(m peer.Message) {
		pterm.Info.Printfln("<- [%s] %s", m.Channel, m.Text())
	}
	c, err := newPeer(role, setup)
	if err != nil {
		return err
	}
	defer c.Close()

	c.Lifecycle().Closed.Subscribe(func(struct{}) {
		util.LogWarning("peer connection went down")
	})

	if waitForGuest != nil {
		util.LogInfo("waiting for the guest to join the relay...")
		if err := waitForGuest(); err != nil {
			return err
		}
	}

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	util.LogSuccess("P2P session established, type a line to send it on %q", cfg.Channels[0].Name)

	util.StartStatsReporter(ctx, time.Second)
	return pumpStdin(ctx, c, cfg.Channels[0].Name)
}

func dialBus(ctx context.Context, s config.Signaling) (signaling.Bus, error) {
	if s.SSE {
		return signaling.DialSSE(s.URL)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return signaling.DialWS(dialCtx, s.URL)
}

// waitClients blocks until both peers are connected to the relay.
func waitClients(ctx context.Context, relay *signaling.Relay) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for relay.Clients() < signaling.MaxRelayClients {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// pumpStdin sends every stdin line on channel until EOF or interrupt.
func pumpStdin(ctx context.Context, c *peer.Controller, channel string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := c.SendText(channel, line); err != nil {
				util.LogError("%v", err)
			}
		}
	}
}
