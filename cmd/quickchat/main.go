package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/andrew264/quickchat/internal/chat"
	"github.com/andrew264/quickchat/internal/client"
	"github.com/andrew264/quickchat/internal/config"
	"github.com/andrew264/quickchat/internal/discovery"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// A .env file is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	app := &cli.Command{
		Name:  "quickchat",
		Usage: "LAN group chat with automatic server discovery",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the chat server and discovery responder",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return serve(ctx, cfg, logger)
				},
			},
			{
				Name:  "join",
				Usage: "connect to a chat server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "server address host:port (skips discovery)"},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					addr := cmd.String("addr")
					if addr == "" {
						ip, err := discovery.Locate(cfg.DiscoveryPort, cfg.DiscoveryTimeout, logger)
						if err != nil {
							return err
						}
						addr = net.JoinHostPort(ip.String(), strconv.Itoa(cfg.Port))
					}
					return join(addr, logger)
				},
			},
		},
		// No subcommand: the original behavior. Look for a server on the
		// LAN; if none answers, become one and join it.
		Action: func(_ context.Context, _ *cli.Command) error {
			return auto(cfg, logger)
		},
	}

	return app.Run(ctx, os.Args)
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	srv := chat.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	srv.Stop()
	return nil
}

func join(addr string, logger *slog.Logger) error {
	logger.Info("connecting to server", "addr", addr)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	return client.New(conn, os.Stdin, os.Stdout, logger).Run()
}

func auto(cfg config.Config, logger *slog.Logger) error {
	ip, err := discovery.Locate(cfg.DiscoveryPort, cfg.DiscoveryTimeout, logger)
	if err == nil {
		return join(net.JoinHostPort(ip.String(), strconv.Itoa(cfg.Port)), logger)
	}
	if !errors.Is(err, discovery.ErrNoServer) {
		return err
	}

	logger.Info("no server found, hosting one")
	srv := chat.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer srv.Stop()

	return join(net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port)), logger)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr so the interactive client keeps stdout for chat.
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
