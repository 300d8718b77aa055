// Peerlink CLI entry point.
//
// Peerlink opens a two-party WebRTC session between a Host and a Guest,
// multiplexing labeled data channels and an optional media stream over one
// peer connection. Signaling goes through an in-process bus (demo), a
// WebSocket relay, or an SSE relay.
//
// Usage:
//
//	peerlink demo  [flags]   run Host and Guest in one process
//	peerlink relay [flags]   run a signaling relay
//	peerlink host  [flags]   join a session as Host
//	peerlink guest [flags]   join a session as Guest
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/peerlink/internal/config"
	"github.com/1ureka/peerlink/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "demo":
		return runDemo(ctx, rest)
	case "relay":
		return runRelay(ctx, rest)
	case "host", "guest":
		return runPeer(ctx, config.Role(cmd), rest)
	case "version", "--version":
		fmt.Println("peerlink", version)
		return nil
	case "help", "-h", "--help":
		printUsage()
		return nil
	}
	printUsage()
	return fmt.Errorf("unknown command %q", cmd)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Peerlink — two-party WebRTC sessions with multiplexed data channels.

Usage:
  peerlink demo  [--config file] [--timeout sec] [--media]
  peerlink relay [--listen addr] [--pin pin] [--sse]
  peerlink host  [--config file] [--url relay-url | --listen addr]
  peerlink guest --url relay-url [--config file]

Run "peerlink <command> --help" for the flags of a command.
`)
}

// commonFlags are shared by demo, host and guest.
type commonFlags struct {
	configPath string
	logLevel   string
	timeout    int
	media      bool
}

func (f *commonFlags) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error, silent")
	fs.IntVar(&f.timeout, "timeout", 0, "seconds to wait for every data channel to open")
	fs.BoolVar(&f.media, "media", false, "attach a local video track")
}

// load reads the config file and applies flag overrides.
func (f *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.timeout > 0 {
		cfg.DataChannelWaitSec = f.timeout
	}
	if f.media {
		cfg.Media = true
	}
	if err := util.SetLogLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func banner(title string) {
	pterm.Info.Println(fmt.Sprintf("Peerlink — v%s — %s", version, title))
	pterm.Println()
}
