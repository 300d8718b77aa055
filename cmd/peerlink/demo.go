package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/peerlink/internal/config"
	"github.com/1ureka/peerlink/internal/peer"
	"github.com/1ureka/peerlink/internal/signaling"
	"github.com/1ureka/peerlink/internal/util"
)

// runDemo runs a Host and a Guest in this process over an in-memory bus.
// The Guest sends on every channel and the Host echoes each message back.
func runDemo(ctx context.Context, args []string) error {
	var flags commonFlags
	fs := pflag.NewFlagSet("demo", pflag.ContinueOnError)
	flags.addFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if len(cfg.Channels) == 0 {
		return errors.New("demo needs at least one channel")
	}

	banner("in-process demo")

	bus := signaling.NewMemoryBus()
	lifecycle := peer.NewLifecycle()
	lifecycle.Connecting.Subscribe(func(struct{}) { util.LogInfo("negotiation started") })
	lifecycle.Closed.Subscribe(func(struct{}) { util.LogInfo("a peer connection went down") })

	replies := make(chan peer.Message, len(cfg.Channels))

	var host *peer.Controller
	hostSetup := peerSetup{cfg: cfg, bus: bus, lifecycle: lifecycle, loopback: true}
	hostSetup.onMessage = func(m peer.Message) {
		pterm.Info.Printfln("Host  <- [%s] %s", m.Channel, m.Text())
		if err := host.SendText(m.Channel, "echo: "+m.Text()); err != nil {
			util.LogError("echo on %q: %v", m.Channel, err)
		}
	}
	host, err = newPeer(config.RoleHost, hostSetup)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	defer host.Close()

	guestCfg := cfg
	guestCfg.Media = false
	guestSetup := peerSetup{cfg: guestCfg, bus: bus, lifecycle: lifecycle, loopback: true}
	guestSetup.onMessage = func(m peer.Message) {
		pterm.Info.Printfln("Guest <- [%s] %s", m.Channel, m.Text())
		replies <- m
	}
	guest, err := newPeer(config.RoleGuest, guestSetup)
	if err != nil {
		return fmt.Errorf("failed to create guest: %w", err)
	}
	defer guest.Close()

	errs := make(chan error, 2)
	go func() { errs <- host.Connect(ctx) }()
	go func() { errs <- guest.Connect(ctx) }()
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}
	util.LogSuccess("both peers connected, %d channel(s) open", len(cfg.Channels))

	for _, ch := range cfg.Channels {
		if err := guest.SendText(ch.Name, "hello on "+ch.Name); err != nil {
			return err
		}
	}

	timeout := time.After(cfg.ChannelTimeout())
	for range cfg.Channels {
		select {
		case <-replies:
		case <-timeout:
			return errors.New("timed out waiting for echoes")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := guest.SendText("unknown", "x"); errors.Is(err, peer.ErrUnknownChannel) {
		util.LogInfo("sending on an unregistered channel fails as expected: %v", err)
	}

	snap := util.Stats.Snapshot()
	util.LogSuccess("demo finished: %d messages sent, %d received", snap.MessagesSent, snap.MessagesRecv)
	return nil
}
