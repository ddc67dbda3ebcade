package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/plotlink"
	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PlotsURI is the resource listing every open plot.
const PlotsURI = "plotlink://plots"

// DefaultProbeTimeout bounds the probe_client tool.
const DefaultProbeTimeout = 2 * time.Second

// Manager is the plot registry the MCP tools drive. session.Manager implements it.
type Manager interface {
	List() []string
	Snapshot(ctx context.Context, plotID string) (*domain.Snapshot, error)
	SetAccepting(ctx context.Context, plotID string, accept bool) (bool, error)
	Invalidate(ctx context.Context, plotID string) (bool, error)
	Probe(ctx context.Context, plotID string, timeout time.Duration) (bool, error)
	Post(plotID, text string) error
	Refresh(plotID string) error
}

// ListResponse is the output of list_plots.
type ListResponse struct {
	Plots []*domain.Snapshot `json:"plots" jsonschema_description:"Snapshots of open plots in lexical order"`
}

// QueuedResponse is the output of tools that enqueue work on a plot runner.
type QueuedResponse struct {
	PlotID string `json:"plot_id"`
	Queued bool   `json:"queued" jsonschema_description:"The request was queued for the dispatch loop"`
}

// AcceptingResponse is the output of set_accepting.
type AcceptingResponse struct {
	PlotID    string `json:"plot_id"`
	Accepting bool   `json:"accepting" jsonschema_description:"Resulting state of the accept gate"`
}

// ClearedResponse is the output of invalidate_client.
type ClearedResponse struct {
	PlotID  string `json:"plot_id"`
	Cleared bool   `json:"cleared" jsonschema_description:"A client was bound before the call"`
}

// ProbeResponse is the output of probe_client.
type ProbeResponse struct {
	PlotID     string `json:"plot_id"`
	Responding bool   `json:"responding"`
}

type plotArgs struct {
	PlotID string `json:"plot_id"`
}

type eventArgs struct {
	PlotID string `json:"plot_id"`
	Text   string `json:"text"`
}

type acceptingArgs struct {
	PlotID    string `json:"plot_id"`
	Accepting bool   `json:"accepting"`
}

// Server exposes a plot Manager as an MCP server.
type Server struct {
	plots        Manager
	probeTimeout time.Duration
	logger       *slog.Logger
	mcpServer    *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProbeTimeout bounds probe_client.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(plots Manager, opts ...Option) *Server {
	s := &Server{
		plots:        plots,
		probeTimeout: DefaultProbeTimeout,
		logger:       logging.NewNop(),
		mcpServer:    server.NewMCPServer("plotlink-mcp", strings.TrimSpace(plotlink.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func plotIDParam() mcp.ToolOption {
	return mcp.WithString("plot_id", mcp.Required(), mcp.Description("ID of an open plot"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_plots",
		mcp.WithDescription("List the snapshots of every open plot."),
		mcp.WithOutputSchema[ListResponse](),
	), mcp.NewStructuredToolHandler(s.handleListPlots))

	s.mcpServer.AddTool(mcp.NewTool("plot_status",
		mcp.WithDescription("Get the phase, accept gate and client binding of a plot."),
		plotIDParam(),
		mcp.WithOutputSchema[domain.Snapshot](),
	), mcp.NewStructuredToolHandler(s.handlePlotStatus))

	s.mcpServer.AddTool(mcp.NewTool("process_event",
		mcp.WithDescription("Queue event text such as 'mouseDown 10,20' for dispatch. It reaches the surface only while the plot accepts events."),
		plotIDParam(),
		mcp.WithString("text", mcp.Required(), mcp.Description("Event text: a kind followed by an optional payload")),
		mcp.WithOutputSchema[QueuedResponse](),
	), mcp.NewStructuredToolHandler(s.handleProcessEvent))

	s.mcpServer.AddTool(mcp.NewTool("refresh_view",
		mcp.WithDescription("Queue a redraw of the plot surface."),
		plotIDParam(),
		mcp.WithOutputSchema[QueuedResponse](),
	), mcp.NewStructuredToolHandler(s.handleRefreshView))

	s.mcpServer.AddTool(mcp.NewTool("set_accepting",
		mcp.WithDescription("Open or close the accept gate. The gate stays closed until the surface is ready."),
		plotIDParam(),
		mcp.WithBoolean("accepting", mcp.Required(), mcp.Description("Desired gate state")),
		mcp.WithOutputSchema[AcceptingResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetAccepting))

	s.mcpServer.AddTool(mcp.NewTool("invalidate_client",
		mcp.WithDescription("Clear the plot's client binding."),
		plotIDParam(),
		mcp.WithOutputSchema[ClearedResponse](),
	), mcp.NewStructuredToolHandler(s.handleInvalidateClient))

	s.mcpServer.AddTool(mcp.NewTool("probe_client",
		mcp.WithDescription("Check whether the bound client is valid and responding."),
		plotIDParam(),
		mcp.WithOutputSchema[ProbeResponse](),
	), mcp.NewStructuredToolHandler(s.handleProbeClient))
}

func requirePlotID(id string) error {
	if id == "" {
		return errors.New("plot_id is required")
	}
	return nil
}

func (s *Server) handleListPlots(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (ListResponse, error) {
	resp := ListResponse{Plots: make([]*domain.Snapshot, 0)}
	for _, id := range s.plots.List() {
		snap, err := s.plots.Snapshot(ctx, id)
		if err != nil {
			continue
		}
		resp.Plots = append(resp.Plots, snap)
	}
	return resp, nil
}

func (s *Server) handlePlotStatus(ctx context.Context, _ mcp.CallToolRequest, args plotArgs) (domain.Snapshot, error) {
	if err := requirePlotID(args.PlotID); err != nil {
		return domain.Snapshot{}, err
	}
	snap, err := s.plots.Snapshot(ctx, args.PlotID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("plot status failed: %w", err)
	}
	return *snap, nil
}

func (s *Server) handleProcessEvent(_ context.Context, _ mcp.CallToolRequest, args eventArgs) (QueuedResponse, error) {
	if err := requirePlotID(args.PlotID); err != nil {
		return QueuedResponse{}, err
	}
	if err := s.plots.Post(args.PlotID, args.Text); err != nil {
		s.logger.Warn("MCP process_event rejected", "plot_id", args.PlotID, "err", err)
		return QueuedResponse{}, fmt.Errorf("process event failed: %w", err)
	}
	return QueuedResponse{PlotID: args.PlotID, Queued: true}, nil
}

func (s *Server) handleRefreshView(_ context.Context, _ mcp.CallToolRequest, args plotArgs) (QueuedResponse, error) {
	if err := requirePlotID(args.PlotID); err != nil {
		return QueuedResponse{}, err
	}
	if err := s.plots.Refresh(args.PlotID); err != nil {
		return QueuedResponse{}, fmt.Errorf("refresh failed: %w", err)
	}
	return QueuedResponse{PlotID: args.PlotID, Queued: true}, nil
}

func (s *Server) handleSetAccepting(ctx context.Context, _ mcp.CallToolRequest, args acceptingArgs) (AcceptingResponse, error) {
	if err := requirePlotID(args.PlotID); err != nil {
		return AcceptingResponse{}, err
	}
	accepting, err := s.plots.SetAccepting(ctx, args.PlotID, args.Accepting)
	if err != nil {
		return AcceptingResponse{}, fmt.Errorf("set accepting failed: %w", err)
	}
	return AcceptingResponse{PlotID: args.PlotID, Accepting: accepting}, nil
}

func (s *Server) handleInvalidateClient(ctx context.Context, _ mcp.CallToolRequest, args plotArgs) (ClearedResponse, error) {
	if err := requirePlotID(args.PlotID); err != nil {
		return ClearedResponse{}, err
	}
	cleared, err := s.plots.Invalidate(ctx, args.PlotID)
	if err != nil {
		return ClearedResponse{}, fmt.Errorf("invalidate failed: %w", err)
	}
	return ClearedResponse{PlotID: args.PlotID, Cleared: cleared}, nil
}

func (s *Server) handleProbeClient(ctx context.Context, _ mcp.CallToolRequest, args plotArgs) (ProbeResponse, error) {
	if err := requirePlotID(args.PlotID); err != nil {
		return ProbeResponse{}, err
	}
	responding, err := s.plots.Probe(ctx, args.PlotID, s.probeTimeout)
	if err != nil {
		return ProbeResponse{}, fmt.Errorf("probe failed: %w", err)
	}
	return ProbeResponse{PlotID: args.PlotID, Responding: responding}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(PlotsURI, "Open plots",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		list, err := s.handleListPlots(ctx, mcp.CallToolRequest{}, struct{}{})
		if err != nil {
			return nil, err
		}
		jsonBytes, err := json.Marshal(list.Plots)
		if err != nil {
			return nil, fmt.Errorf("failed to encode plots: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      PlotsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
