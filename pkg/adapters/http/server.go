package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/plotlink"
	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/adapters/process"
	"github.com/aretw0/plotlink/pkg/adapters/surface"
	"github.com/aretw0/plotlink/pkg/adapters/ws"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/plot"
	"github.com/aretw0/plotlink/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed openapi.yaml
var rawSpec []byte

// DefaultProbeTimeout bounds GET /plots/{id}/client/probe.
const DefaultProbeTimeout = 2 * time.Second

const maxBodyBytes = 1 << 20

// Manager is the plot registry the HTTP API drives. session.Manager implements it.
type Manager interface {
	Open(ctx context.Context, plotID string, canvas ports.Surface, opts ...plot.Option) (*plot.Endpoint, error)
	Get(plotID string) (*plot.Endpoint, error)
	List() []string
	Snapshot(ctx context.Context, plotID string) (*domain.Snapshot, error)
	Close(ctx context.Context, plotID string) error
	SetAccepting(ctx context.Context, plotID string, accept bool) (bool, error)
	MarkReady(ctx context.Context, plotID string) (bool, error)
	Bind(ctx context.Context, plotID string, identity ports.Responder, pid int, name string) error
	Invalidate(ctx context.Context, plotID string) (bool, error)
	Probe(ctx context.Context, plotID string, timeout time.Duration) (bool, error)
	Post(plotID, text string) error
	Refresh(plotID string) error
}

// SurfaceFactory builds the rendering surface of a plot opened over HTTP.
type SurfaceFactory func(plotID string) ports.Surface

// Server serves the plot API.
type Server struct {
	Plots   Manager
	Streams *StreamManager

	clients      *ws.Handler
	surfaces     SurfaceFactory
	gatherer     prometheus.Gatherer
	probeTimeout time.Duration
	spec         *openapi3.T
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams shares a StreamManager, typically one registered as the
// Manager's change listener.
func WithStreams(streams *StreamManager) Option {
	return func(s *Server) {
		s.Streams = streams
	}
}

// WithSurfaceFactory sets how surfaces of new plots are built.
// The default is a ready Recorder.
func WithSurfaceFactory(fn SurfaceFactory) Option {
	return func(s *Server) {
		s.surfaces = fn
	}
}

// WithMetrics exposes gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithProbeTimeout bounds client liveness probes.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// WithClientHandler replaces the websocket client handler.
func WithClientHandler(h *ws.Handler) Option {
	return func(s *Server) {
		s.clients = h
	}
}

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi spec: %w", err)
	}
	return doc, nil
}

// NewServer builds a Server over plots. It fails when the embedded API
// document does not validate.
func NewServer(plots Manager, opts ...Option) (*Server, error) {
	spec, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	s := &Server{
		Plots:        plots,
		spec:         spec,
		probeTimeout: DefaultProbeTimeout,
		logger:       logging.NewNop(),
		surfaces: func(string) ports.Surface {
			return surface.NewRecorder(true)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(WithStreamLogger(s.logger))
	}
	if s.clients == nil {
		s.clients = ws.NewHandler(plots, ws.WithLogger(s.logger))
	}
	return s, nil
}

// NewHandler creates the HTTP handler for plots.
func NewHandler(plots Manager, opts ...Option) (http.Handler, error) {
	s, err := NewServer(plots, opts...)
	if err != nil {
		return nil, err
	}
	return s.Routes(), nil
}

// Routes returns the router with every API route mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/plots", func(r chi.Router) {
		r.Get("/", s.ListPlots)
		r.Post("/", s.OpenPlot)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetPlot)
			r.Delete("/", s.ClosePlot)
			r.Put("/accepting", s.SetAccepting)
			r.Post("/ready", s.MarkReady)
			r.Post("/events", s.PostEvents)
			r.Post("/refresh", s.RefreshView)
			r.Put("/client", s.BindClient)
			r.Delete("/client", s.InvalidateClient)
			r.Get("/client/probe", s.ProbeClient)
			r.Get("/client/ws", s.ConnectClient)
			r.Get("/watch", s.WatchPlot)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>plotlink API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

type openRequest struct {
	ID        string `json:"id"`
	Accepting bool   `json:"accepting"`
}

type acceptingRequest struct {
	Accepting *bool `json:"accepting"`
}

type eventsRequest struct {
	Events []string `json:"events"`
}

type bindRequest struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"open_plots": len(s.Plots.List()),
	})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "plotlink-http",
		"version":     strings.TrimSpace(plotlink.Version),
		"api_version": s.spec.Info.Version,
	})
}

// ListPlots handles GET /plots.
func (s *Server) ListPlots(w http.ResponseWriter, r *http.Request) {
	snaps := make([]*domain.Snapshot, 0)
	for _, id := range s.Plots.List() {
		snap, err := s.Plots.Snapshot(r.Context(), id)
		if err != nil {
			// Closed between List and Snapshot.
			continue
		}
		snaps = append(snaps, snap)
	}
	s.writeJSON(w, http.StatusOK, snaps)
}

// OpenPlot handles POST /plots.
func (s *Server) OpenPlot(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.ID == "" || strings.ContainsAny(body.ID, `/\`) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid plot id %q", body.ID))
		return
	}

	ctx := r.Context()
	if _, err := s.Plots.Open(ctx, body.ID, s.surfaces(body.ID)); err != nil {
		s.fail(w, "open plot", err)
		return
	}
	if body.Accepting {
		if _, err := s.Plots.SetAccepting(ctx, body.ID, true); err != nil {
			s.fail(w, "open plot", err)
			return
		}
	}
	s.respondSnapshot(w, r, body.ID, http.StatusCreated)
}

// GetPlot handles GET /plots/{id}.
func (s *Server) GetPlot(w http.ResponseWriter, r *http.Request) {
	s.respondSnapshot(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

// ClosePlot handles DELETE /plots/{id}.
func (s *Server) ClosePlot(w http.ResponseWriter, r *http.Request) {
	if err := s.Plots.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "close plot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetAccepting handles PUT /plots/{id}/accepting.
func (s *Server) SetAccepting(w http.ResponseWriter, r *http.Request) {
	var body acceptingRequest
	if !s.decode(w, r, &body) {
		return
	}
	if body.Accepting == nil {
		s.writeError(w, http.StatusBadRequest, errors.New("accepting is required"))
		return
	}
	accepting, err := s.Plots.SetAccepting(r.Context(), chi.URLParam(r, "id"), *body.Accepting)
	if err != nil {
		s.fail(w, "set accepting", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"accepting": accepting})
}

// MarkReady handles POST /plots/{id}/ready.
func (s *Server) MarkReady(w http.ResponseWriter, r *http.Request) {
	changed, err := s.Plots.MarkReady(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "mark ready", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// PostEvents handles POST /plots/{id}/events. Events are queued in order;
// whether each is dispatched depends on the gate when it is processed.
func (s *Server) PostEvents(w http.ResponseWriter, r *http.Request) {
	var body eventsRequest
	if !s.decode(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	for i, text := range body.Events {
		if err := s.Plots.Post(id, text); err != nil {
			s.logger.Warn("post events stopped", "plot_id", id, "queued", i, "err", err)
			s.fail(w, "post events", err)
			return
		}
	}
	s.writeJSON(w, http.StatusAccepted, map[string]int{"queued": len(body.Events)})
}

// RefreshView handles POST /plots/{id}/refresh.
func (s *Server) RefreshView(w http.ResponseWriter, r *http.Request) {
	if err := s.Plots.Refresh(chi.URLParam(r, "id")); err != nil {
		s.fail(w, "refresh", err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]int{"queued": 1})
}

// BindClient handles PUT /plots/{id}/client, binding a local process by pid.
func (s *Server) BindClient(w http.ResponseWriter, r *http.Request) {
	var body bindRequest
	if !s.decode(w, r, &body) {
		return
	}
	responder, err := process.NewResponder(body.PID, process.WithLogger(s.logger))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	name := body.Name
	if name == "" {
		name = responder.Name(ctx)
	}
	id := chi.URLParam(r, "id")
	if err := s.Plots.Bind(ctx, id, responder, body.PID, name); err != nil {
		s.fail(w, "bind client", err)
		return
	}
	s.respondSnapshot(w, r, id, http.StatusOK)
}

// InvalidateClient handles DELETE /plots/{id}/client.
func (s *Server) InvalidateClient(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.Plots.Invalidate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "invalidate client", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cleared": cleared})
}

// ProbeClient handles GET /plots/{id}/client/probe.
func (s *Server) ProbeClient(w http.ResponseWriter, r *http.Request) {
	responding, err := s.Plots.Probe(r.Context(), chi.URLParam(r, "id"), s.probeTimeout)
	if err != nil {
		s.fail(w, "probe client", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"responding": responding})
}

// ConnectClient handles GET /plots/{id}/client/ws.
func (s *Server) ConnectClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Plots.Get(id); err != nil {
		s.fail(w, "connect client", err)
		return
	}
	s.clients.ServeClient(w, r, id)
}

// WatchPlot handles GET /plots/{id}/watch (SSE). The first message carries the
// full snapshot; later messages carry SnapshotDiff JSON. The stream ends after
// the plot closes.
func (s *Server) WatchPlot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ep, err := s.Plots.Get(id)
	if err != nil {
		s.fail(w, "watch plot", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("WatchPlot: Streaming not supported")
		return
	}

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	snap := ep.Snapshot()
	if initial, err := json.Marshal(domain.Diff(nil, &snap)); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", initial)
	}
	flusher.Flush()
	s.logger.Info("SSE: watching plot", "plot_id", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "plot_id", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
			if isClosedDiff(msg) {
				return
			}
		}
	}
}

func isClosedDiff(msg string) bool {
	var diff domain.SnapshotDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return false
	}
	return diff.Phase != nil && *diff.Phase == domain.PhaseClosed
}

// -- Helpers --

func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request, plotID string, status int) {
	snap, err := s.Plots.Snapshot(r.Context(), plotID)
	if err != nil {
		s.fail(w, "snapshot", err)
		return
	}
	s.writeJSON(w, status, snap)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPlotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPlotExists):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	s.writeError(w, status, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
