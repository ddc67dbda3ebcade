package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aretw0/plotlink"
	"github.com/aretw0/plotlink/internal/cli"
	"github.com/aretw0/plotlink/internal/config"
	"github.com/aretw0/plotlink/internal/presentation/tui"
	"github.com/aretw0/plotlink/pkg/runner"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the plot HTTP server",
	Long: `Starts the plot registry and exposes it as a JSON API over HTTP.
Drawing clients connect over websocket at /plots/{id}/client/ws; metrics are
served on /metrics and the API document on /openapi.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyServeFlags(cmd, cfg); err != nil {
			return err
		}

		sm := runner.NewSignalManager(cmd.Context())
		defer sm.Stop()
		ctx := sm.Context()

		host, err := cli.NewHost(ctx, cfg, logger, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() {
			if err := host.Close(context.Background()); err != nil {
				logger.Error("shutdown incomplete", "err", err)
			}
		}()

		open, _ := cmd.Flags().GetStringSlice("open")
		accept, _ := cmd.Flags().GetBool("accept")
		if err := host.OpenPlots(ctx, accept, open...); err != nil {
			return err
		}

		handler, err := host.Handler()
		if err != nil {
			return err
		}

		if cli.IsTerminal(os.Stderr) {
			tui.PrintBanner(os.Stderr, plotlink.Version)
		}
		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: handler,
			// Watch streams end with the signal context.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}
		return serveHTTP(ctx, srv, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", "", "Address to listen on (overrides server.addr)")
	cmd.Flags().String("surface", "", "Surface for new plots: recorder or terminal (overrides server.surface)")
	cmd.Flags().StringSlice("open", nil, "Plot IDs to open at start-up")
	cmd.Flags().Bool("accept", false, "Open the accept gate of plots opened at start-up")
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if s, _ := cmd.Flags().GetString("surface"); s != "" {
		cfg.Server.Surface = s
	}
	return cfg.Validate()
}

// serveHTTP runs srv until ctx is cancelled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("plotlink server listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("error killing server: %w", err)
			}
		}
		logger.Info("plotlink server stopped")
		return nil
	}
}
