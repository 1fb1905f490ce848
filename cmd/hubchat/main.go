// hubchat is a terminal chat client built on the hubsocket transport.
//
// Every line read from stdin is sent as a hub invocation; every payload
// pushed by the hub is printed to stdout.
//
// Usage:
//
//	hubchat --url https://chat.example.com/signalr --hub chathub --method send
//	hubchat --config hubchat.toml
//
// Configuration falls back to HUBSOCKET_* environment variables.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/layr8/hubsocket"
)

type flags struct {
	configPath     string
	url            string
	hub            string
	method         string
	logLevel       string
	reconnectDelay time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "hubchat",
		Short:         "Chat with a message hub over a persistent WebSocket session",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&f.url, "url", "", "hub endpoint URL (overrides config)")
	cmd.Flags().StringVar(&f.hub, "hub", "chathub", "hub name")
	cmd.Flags().StringVar(&f.method, "method", "send", "hub method invoked for each input line")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	cmd.Flags().DurationVar(&f.reconnectDelay, "reconnect-delay", 0, "delay between reconnect attempts (overrides config)")
	return cmd
}

func loadConfig(f flags) (hubsocket.Config, error) {
	var cfg hubsocket.Config
	if f.configPath != "" {
		var err error
		if cfg, err = hubsocket.LoadConfig(f.configPath); err != nil {
			return cfg, err
		}
	}
	if f.url != "" {
		cfg.URL = f.url
	}
	if f.reconnectDelay > 0 {
		cfg.ReconnectDelay = f.reconnectDelay
	}
	if cfg.ConnectionData == "" && f.hub != "" {
		data, err := connectionData(f.hub)
		if err != nil {
			return cfg, err
		}
		cfg.ConnectionData = data
	}
	return cfg, nil
}

func run(parent context.Context, f flags) error {
	setupLogging(f.logLevel)

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	transport, err := hubsocket.NewTransport(cfg, hubsocket.ConsumerFuncs{
		Payload: func(m json.RawMessage) {
			fmt.Println(formatPayload(m))
		},
		Reconnected: func() {
			fmt.Println("--- reconnected ---")
		},
		Error: hubsocket.LogErrors(log.Logger),
	}, hubsocket.WithLogger(log.Logger))
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	session := hubsocket.NewSession(hubsocket.WithStateObserver(func(old, new hubsocket.State) {
		log.Debug().Stringer("from", old).Stringer("to", new).Msg("state changed")
	}))
	if err := transport.Start(ctx, session); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = transport.Close(closeCtx)
	}()

	fmt.Println("type a message and press enter (Ctrl+C to quit)")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var invocationID int
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
			frame, err := invocation(f.hub, f.method, line, invocationID)
			if err != nil {
				log.Error().Err(err).Msg("build invocation")
				continue
			}
			invocationID++
			if err := transport.Send(ctx, session, frame); err != nil {
				log.Error().Err(err).Msg("send failed")
			}
		}
	}
}
