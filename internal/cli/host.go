package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/plotlink/internal/adapters/file"
	"github.com/aretw0/plotlink/internal/config"
	httpadapter "github.com/aretw0/plotlink/pkg/adapters/http"
	"github.com/aretw0/plotlink/pkg/adapters/memory"
	redisadapter "github.com/aretw0/plotlink/pkg/adapters/redis"
	"github.com/aretw0/plotlink/pkg/adapters/surface"
	"github.com/aretw0/plotlink/pkg/observability"
	"github.com/aretw0/plotlink/pkg/persistence/middleware"
	"github.com/aretw0/plotlink/pkg/plot"
	"github.com/aretw0/plotlink/pkg/ports"
	"github.com/aretw0/plotlink/pkg/runner"
	"github.com/aretw0/plotlink/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Backend is an opened snapshot store plus the locker that goes with it.
type Backend struct {
	Store  ports.PlotStore
	Locker ports.DistributedLocker // nil unless the store is shared (redis)
	close  func() error
}

// Close releases the store's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend opens the store selected by cfg.Store.Kind. mws wrap the raw
// store; the first is the outermost.
func OpenBackend(ctx context.Context, cfg *config.Config, mws ...middleware.Middleware) (*Backend, error) {
	b := &Backend{}
	var raw ports.PlotStore

	switch cfg.Store.Kind {
	case "memory":
		raw = memory.NewStore()
	case "file":
		raw = file.New(cfg.Store.Dir)
	case "redis":
		rc := cfg.Store.Redis
		store := redisadapter.New(rc.Addr, rc.Password, rc.DB,
			redisadapter.WithPrefix(rc.Prefix),
			redisadapter.WithTTL(rc.TTL),
		)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", rc.Addr, err)
		}
		prefix := rc.Prefix
		if prefix == "" {
			prefix = redisadapter.DefaultPrefix
		}
		raw = store
		b.Locker = redisadapter.NewLocker(store.Client(), prefix)
		b.close = store.Close
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	if len(cfg.Store.MaskPatterns) > 0 {
		mask, err := middleware.NewMaskMiddleware(cfg.Store.MaskPatterns)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		mws = append(mws, mask)
	}
	b.Store = middleware.Chain(raw, mws...)
	return b, nil
}

// Host wires the plot registry, its store and observability from configuration.
// serve and mcp share it.
type Host struct {
	Config   *config.Config
	Backend  *Backend
	Manager  *session.Manager
	Streams  *httpadapter.StreamManager
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	out    io.Writer
	logger *slog.Logger
}

// NewHost builds a Host. out receives terminal surface output.
func NewHost(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*Host, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	backend, err := OpenBackend(ctx, cfg, metrics.InstrumentStore())
	if err != nil {
		return nil, err
	}

	streams := httpadapter.NewStreamManager(httpadapter.WithStreamLogger(logger))
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithChangeListener(streams.Publish),
		session.WithEndpointOptions(
			plot.WithLogger(logger),
			plot.WithLifecycleHooks(metrics.Hooks()),
			plot.WithLifecycleHooks(observability.LoggingHooks(logger)),
			plot.WithEventKinds(cfg.Events.Kinds...),
			plot.WithMaxEventSize(cfg.Events.MaxSize),
		),
		session.WithRunnerOptions(
			runner.WithBufferSize(cfg.Runner.Buffer),
			runner.WithCoalesceRefresh(cfg.Runner.CoalesceRefresh),
		),
	}
	if backend.Locker != nil {
		opts = append(opts, session.WithLocker(backend.Locker), session.WithLockTTL(cfg.Store.Redis.LockTTL))
	}
	mgr := session.NewManager(backend.Store, opts...)
	observability.RegisterOpenPlots(reg, func() int { return len(mgr.List()) })

	return &Host{
		Config:   cfg,
		Backend:  backend,
		Manager:  mgr,
		Streams:  streams,
		Registry: reg,
		Metrics:  metrics,
		out:      out,
		logger:   logger,
	}, nil
}

// Surface builds the surface of a new plot according to server.surface.
func (h *Host) Surface(plotID string) ports.Surface {
	if h.Config.Server.Surface == "terminal" {
		return surface.NewTerminal(h.out, plotID)
	}
	return surface.NewRecorder(true)
}

// Handler builds the HTTP API over the host's registry.
func (h *Host) Handler() (http.Handler, error) {
	return httpadapter.NewHandler(h.Manager,
		httpadapter.WithLogger(h.logger),
		httpadapter.WithStreams(h.Streams),
		httpadapter.WithSurfaceFactory(h.Surface),
		httpadapter.WithMetrics(h.Registry),
		httpadapter.WithProbeTimeout(h.Config.Probe.Timeout),
	)
}

// OpenPlots opens each id with a configured surface, accepting events when accept is set.
func (h *Host) OpenPlots(ctx context.Context, accept bool, ids ...string) error {
	for _, id := range ids {
		if _, err := h.Manager.Open(ctx, id, h.Surface(id)); err != nil {
			return err
		}
		if accept {
			if _, err := h.Manager.SetAccepting(ctx, id, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every plot, then the store.
func (h *Host) Close(ctx context.Context) error {
	return errors.Join(h.Manager.CloseAll(ctx), h.Backend.Close())
}
