package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/logging"
	"github.com/Tyrowin/gorelay/internal/metrics"
	"github.com/Tyrowin/gorelay/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gorelay-server",
	Short: "Run the gorelay chat relay",
	Long: `gorelay-server relays fixed-size text chat packets between clients.

Clients connect over raw TCP (one 512-byte frame per packet) or over
WebSocket at /ws on the HTTP listener, which also serves /metrics.`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().String("config", "", "Path to a TOML configuration file")
	rootCmd.Flags().String("tcp", "", "TCP listen address (overrides config)")
	rootCmd.Flags().String("http", "", "HTTP listen address for /ws and /metrics (overrides config)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("tcp") {
		cfg.TCPAddr, _ = cmd.Flags().GetString("tcp")
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTPAddr, _ = cmd.Flags().GetString("http")
	}
	return config.Sanitize(cfg), nil
}

func runServer(cmd *cobra.Command, _ []string) error {
	logger := logging.ConfigureRuntime("gorelay-server")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info().
		Str("tcp", cfg.TCPAddr).
		Str("http", cfg.HTTPAddr).
		Int("max_connections", cfg.MaxConnections).
		Bool("require_checksum", cfg.RequireChecksum).
		Msg("starting relay")

	hub := server.NewHub(cfg, logger, metrics.New())
	ln, err := hub.Listen()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Serve(ctx, ln) })

	if cfg.HTTPAddr != "" {
		httpServer := server.CreateServer(cfg.HTTPAddr, server.SetupRoutes(hub))
		g.Go(func() error { return server.StartServer(httpServer, logger) })
		g.Go(func() error {
			<-ctx.Done()
			return server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("received shutdown signal")
		if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
			logger.Warn().Err(err).Msg("hub shutdown incomplete")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("relay stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
