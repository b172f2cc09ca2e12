package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/server"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := server.NewConfigFromEnv()
	var rooms, origins string

	cmd := &cobra.Command{
		Use:   "roomchat",
		Short: "Real-time chatroom relay over WebSocket",
		Long: `roomchat relays chat messages and room presence between WebSocket clients.

Clients join rooms from a fixed whitelist, send short text messages that are
broadcast to every open connection, and receive a live roster per room.
Flags override the corresponding environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("rooms") {
				cfg.Rooms = splitList(rooms)
			}
			if cmd.Flags().Changed("allowed-origins") {
				cfg.AllowedOrigins = splitList(origins)
			}
			return run(*cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Port, "port", "p", cfg.Port, "listen address or port (env SERVER_PORT)")
	flags.StringVar(&rooms, "rooms", strings.Join(cfg.Rooms, ","), "comma-separated room whitelist (env CHAT_ROOMS)")
	flags.StringVar(&origins, "allowed-origins", strings.Join(cfg.AllowedOrigins, ","), "comma-separated allowed origins, * for any (env ALLOWED_ORIGINS)")
	flags.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "liveness sweep period (env HEARTBEAT_INTERVAL)")
	flags.Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "maximum inbound frame size in bytes (env MAX_MESSAGE_SIZE)")
	flags.IntVar(&cfg.RateLimit.Burst, "rate-limit-burst", cfg.RateLimit.Burst, "messages allowed per refill interval (env RATE_LIMIT_BURST)")
	flags.DurationVar(&cfg.RateLimit.RefillInterval, "rate-limit-interval", cfg.RateLimit.RefillInterval, "rate limit refill interval (env RATE_LIMIT_REFILL_INTERVAL)")
	flags.IntVar(&cfg.SendBufferSize, "send-buffer", cfg.SendBufferSize, "outbound frames queued per connection (env SEND_BUFFER_SIZE)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (env LOG_LEVEL)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "console or json (env LOG_FORMAT)")

	return cmd
}

func run(cfg server.Config) error {
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	srv := server.New(cfg, log)
	srv.Start()

	httpServer := server.CreateServer(srv.Config().Port, srv.Handler())
	go func() {
		if err := server.StartServer(httpServer, log); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, log)
			},
			"hub": func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Info().Int("code", exitCode).Msg("server exited")
	if exitCode != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", exitCode)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
