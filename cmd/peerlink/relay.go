package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/1ureka/peerlink/internal/signaling"
	"github.com/1ureka/peerlink/internal/util"
)

// runRelay serves a signaling relay until interrupted.
func runRelay(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	listen := fs.String("listen", ":0", "address to listen on")
	pin := fs.String("pin", "", "PIN required from clients (random when empty)")
	sse := fs.Bool("sse", false, "serve the SSE relay instead of WebSocket")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error, silent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := util.SetLogLevel(*logLevel); err != nil {
		return err
	}
	if *pin == "" {
		*pin = signaling.GeneratePIN(6)
	}

	banner("signaling relay")

	if !*sse {
		relay := signaling.NewRelay(*pin)
		port, err := relay.Start(*listen)
		if err != nil {
			return err
		}
		defer relay.Close()
		util.LogSuccess("WebSocket relay ready: ws://127.0.0.1:%d/ws?pin=%s", port, *pin)
		<-ctx.Done()
		return nil
	}

	relay := signaling.NewSSERelay(*pin)
	listener, err := net.Listen("tcp", *listen)
	if err != nil {
		return fmt.Errorf("failed to start SSE relay: %w", err)
	}
	srv := &http.Server{Handler: relay.Handler()}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("SSE relay: %v", err)
		}
	}()
	port := listener.Addr().(*net.TCPAddr).Port
	util.LogSuccess("SSE relay ready: http://127.0.0.1:%d/?pin=%s", port, *pin)

	<-ctx.Done()
	relay.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
