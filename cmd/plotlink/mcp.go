package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aretw0/plotlink/internal/cli"
	"github.com/aretw0/plotlink/pkg/adapters/mcp"
	"github.com/aretw0/plotlink/pkg/runner"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the plot registry as an MCP Server, so AI agents can list plots, post
events, refresh views, toggle accept gates and manage clients as tools.

The HTTP API (and with it the websocket client endpoint) runs alongside on
server.addr unless --http=false.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := applyServeFlags(cmd, cfg); err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		mcpAddr, _ := cmd.Flags().GetString("mcp-addr")
		withHTTP, _ := cmd.Flags().GetBool("http")

		sm := runner.NewSignalManager(cmd.Context())
		defer sm.Stop()
		ctx := sm.Context()

		// Surfaces must not write to stdout: it carries JSON-RPC.
		host, err := cli.NewHost(ctx, cfg, logger, cmd.ErrOrStderr())
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

		if withHTTP {
			handler, err := host.Handler()
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:        cfg.Server.Addr,
				Handler:     handler,
				BaseContext: func(net.Listener) context.Context { return ctx },
			}
			go func() {
				if err := serveHTTP(ctx, srv, logger); err != nil {
					logger.Error("HTTP API stopped", "err", err)
				}
			}()
		}

		srv := mcp.NewServer(host.Manager, mcp.WithLogger(logger), mcp.WithProbeTimeout(cfg.Probe.Timeout))

		switch transport {
		case "stdio":
			logger.Info("Starting plotlink MCP Server (Stdio)...")
			if err := srv.ServeStdio(); err != nil {
				return fmt.Errorf("MCP server execution failed: %w", err)
			}
			return nil
		case "sse":
			logger.Info("Starting plotlink MCP Server (SSE)", "addr", mcpAddr)
			baseURL := "http://localhost" + mcpAddr
			if err := srv.ServeSSE(ctx, mcpAddr, baseURL); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("MCP server execution failed: %w", err)
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	addServeFlags(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("mcp-addr", ":8081", "Address for the SSE transport")
	mcpCmd.Flags().Bool("http", true, "Serve the HTTP API alongside the MCP server")
}
