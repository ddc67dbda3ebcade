package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/plot"
	"github.com/aretw0/plotlink/pkg/ports"
	"github.com/aretw0/plotlink/pkg/runner"
)

// DefaultLockTTL bounds how long a distributed plot lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// entry is one open plot: the endpoint and the runner that owns its dispatch loop.
type entry struct {
	endpoint *plot.Endpoint
	runner   *runner.Runner
	last     *domain.Snapshot // last saved, guarded by the plot lock
}

// ChangeListener observes every saved snapshot together with the previous one.
// prev is nil for a freshly opened plot.
type ChangeListener func(prev, next *domain.Snapshot)

// Manager is the registry of open plot endpoints.
// Mutations of one plot are serialised by a reference-counted local lock and,
// when configured, a distributed lock; each is applied on the plot's runner
// and followed by a snapshot save.
type Manager struct {
	store ports.PlotStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	plotsMu sync.RWMutex
	plots   map[string]*entry

	locker       ports.DistributedLocker // Optional distributed locker
	lockTTL      time.Duration
	endpointOpts []plot.Option
	runnerOpts   []runner.Option
	listeners    []ChangeListener
	logger       *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEndpointOptions applies opts to every endpoint opened by the Manager.
func WithEndpointOptions(opts ...plot.Option) Option {
	return func(m *Manager) {
		m.endpointOpts = append(m.endpointOpts, opts...)
	}
}

// WithRunnerOptions applies opts to every runner started by the Manager.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(m *Manager) {
		m.runnerOpts = append(m.runnerOpts, opts...)
	}
}

// WithChangeListener registers fn to be called after each snapshot save and on Close.
func WithChangeListener(fn ChangeListener) Option {
	return func(m *Manager) {
		if fn != nil {
			m.listeners = append(m.listeners, fn)
		}
	}
}

// NewManager creates a plot Manager persisting snapshots to store.
func NewManager(store ports.PlotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		plots:   make(map[string]*entry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(plotID) after unlocking.
func (m *Manager) acquire(plotID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.locks[plotID]
	if !exists {
		e = &lockEntry{}
		m.locks[plotID] = e
	}
	e.refs++
	return e
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(plotID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.locks[plotID]
	if !exists {
		return
	}

	e.refs--
	if e.refs <= 0 {
		delete(m.locks, plotID)
	}
}

// WithLock executes fn while holding the lock for the plot.
func (m *Manager) WithLock(ctx context.Context, plotID string, fn func(context.Context) error) error {
	e := m.acquire(plotID)
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		m.release(plotID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, plotID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"plot_id", plotID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Open creates an endpoint for surface and starts its runner. A surface that
// already reports ready moves the endpoint straight to Ready.
func (m *Manager) Open(ctx context.Context, plotID string, surface ports.Surface, opts ...plot.Option) (*plot.Endpoint, error) {
	if plotID == "" {
		return nil, errors.New("plot id is required")
	}

	var ep *plot.Endpoint
	err := m.WithLock(ctx, plotID, func(ctx context.Context) error {
		m.plotsMu.RLock()
		_, exists := m.plots[plotID]
		m.plotsMu.RUnlock()
		if exists {
			return fmt.Errorf("%w: %s", domain.ErrPlotExists, plotID)
		}

		all := append(append([]plot.Option{}, m.endpointOpts...), opts...)
		ep = plot.New(plotID, surface, all...)
		if surface.IsReady() {
			ep.MarkSurfaceReady()
		}

		r := runner.New(ep, append([]runner.Option{runner.WithLogger(m.logger)}, m.runnerOpts...)...)
		go func() {
			if err := r.Run(context.Background()); err != nil {
				m.logger.Error("runner exited", "plot_id", plotID, "err", err)
			}
		}()

		e := &entry{endpoint: ep, runner: r}
		m.plotsMu.Lock()
		m.plots[plotID] = e
		m.plotsMu.Unlock()

		if err := m.save(ctx, e); err != nil {
			m.plotsMu.Lock()
			delete(m.plots, plotID)
			m.plotsMu.Unlock()
			r.Stop()
			ep.Close()
			return err
		}
		m.logger.Info("plot opened", "plot_id", plotID, "phase", ep.Phase())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// Get returns the open endpoint for plotID.
func (m *Manager) Get(plotID string) (*plot.Endpoint, error) {
	e, err := m.entry(plotID)
	if err != nil {
		return nil, err
	}
	return e.endpoint, nil
}

// Runner returns the dispatch runner of an open plot.
func (m *Manager) Runner(plotID string) (*runner.Runner, error) {
	e, err := m.entry(plotID)
	if err != nil {
		return nil, err
	}
	return e.runner, nil
}

func (m *Manager) entry(plotID string) (*entry, error) {
	m.plotsMu.RLock()
	defer m.plotsMu.RUnlock()
	e, ok := m.plots[plotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlotNotFound, plotID)
	}
	return e, nil
}

// List returns the IDs of open plots in lexical order.
func (m *Manager) List() []string {
	m.plotsMu.RLock()
	defer m.plotsMu.RUnlock()

	ids := make([]string, 0, len(m.plots))
	for id := range m.plots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bind binds identity as the plot's client. The placeholder bind and the
// metadata update run back to back under the plot lock, so no other bind
// can interleave between them.
func (m *Manager) Bind(ctx context.Context, plotID string, identity ports.Responder, pid int, name string) error {
	return m.mutate(ctx, plotID, func(ep *plot.Endpoint) {
		ep.SetClient(identity)
		ep.SetClientInfo(name, pid)
	})
}

// Invalidate clears the plot's client binding and reports whether one existed.
func (m *Manager) Invalidate(ctx context.Context, plotID string) (bool, error) {
	var cleared bool
	err := m.mutate(ctx, plotID, func(ep *plot.Endpoint) {
		cleared = ep.InvalidateClient()
	})
	return cleared, err
}

// SetAccepting toggles the accept gate and returns its resulting state.
func (m *Manager) SetAccepting(ctx context.Context, plotID string, accept bool) (bool, error) {
	var accepting bool
	err := m.mutate(ctx, plotID, func(ep *plot.Endpoint) {
		accepting = ep.SetAcceptingEvents(accept)
	})
	return accepting, err
}

// MarkReady records surface setup completion and reports whether the phase changed.
func (m *Manager) MarkReady(ctx context.Context, plotID string) (bool, error) {
	var changed bool
	err := m.mutate(ctx, plotID, func(ep *plot.Endpoint) {
		changed = ep.MarkSurfaceReady()
	})
	return changed, err
}

// Probe checks the plot client's liveness off the dispatch loop.
func (m *Manager) Probe(ctx context.Context, plotID string, timeout time.Duration) (bool, error) {
	e, err := m.entry(plotID)
	if err != nil {
		return false, err
	}
	select {
	case ok := <-e.runner.Probe(ctx, timeout):
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Post queues event text on the plot's runner.
func (m *Manager) Post(plotID, text string) error {
	return m.enqueue(plotID, func(r *runner.Runner) error { return r.Post(text) })
}

// Refresh queues a redraw request on the plot's runner.
func (m *Manager) Refresh(plotID string) error {
	return m.enqueue(plotID, (*runner.Runner).Refresh)
}

func (m *Manager) enqueue(plotID string, fn func(*runner.Runner) error) error {
	e, err := m.entry(plotID)
	if err != nil {
		return err
	}
	if err := fn(e.runner); err != nil {
		if errors.Is(err, runner.ErrRunnerStopped) {
			return fmt.Errorf("%w: %s", domain.ErrPlotNotFound, plotID)
		}
		return err
	}
	return nil
}

// mutate applies fn on the plot's runner and saves the result. Once fn is
// queued it always runs, so the wait and the save ignore ctx cancellation.
func (m *Manager) mutate(ctx context.Context, plotID string, fn func(*plot.Endpoint)) error {
	return m.WithLock(ctx, plotID, func(ctx context.Context) error {
		e, err := m.entry(plotID)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		applied := context.WithoutCancel(ctx)
		if err := e.runner.Call(applied, fn); err != nil {
			if errors.Is(err, runner.ErrRunnerStopped) {
				return fmt.Errorf("%w: %s", domain.ErrPlotNotFound, plotID)
			}
			return err
		}
		return m.save(applied, e)
	})
}

// Close stops the plot's runner after its queue drains, closes the endpoint,
// removes it from the registry and deletes its snapshot.
func (m *Manager) Close(ctx context.Context, plotID string) error {
	return m.WithLock(ctx, plotID, func(ctx context.Context) error {
		m.plotsMu.Lock()
		e, ok := m.plots[plotID]
		delete(m.plots, plotID)
		m.plotsMu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrPlotNotFound, plotID)
		}

		e.runner.Stop()
		e.endpoint.Close()
		closed := e.endpoint.Snapshot()
		m.notify(e, &closed)
		m.logger.Info("plot closed", "plot_id", plotID)

		if err := m.store.Delete(ctx, plotID); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		return nil
	})
}

// CloseAll closes every open plot.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.List() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrPlotNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Save persists the current snapshot of an open plot.
func (m *Manager) Save(ctx context.Context, plotID string) error {
	return m.WithLock(ctx, plotID, func(ctx context.Context) error {
		e, err := m.entry(plotID)
		if err != nil {
			return err
		}
		return m.save(ctx, e)
	})
}

func (m *Manager) save(ctx context.Context, e *entry) error {
	snap := e.endpoint.Snapshot()
	if err := m.store.Save(ctx, e.endpoint.ID(), &snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	m.notify(e, &snap)
	return nil
}

func (m *Manager) notify(e *entry, snap *domain.Snapshot) {
	prev := e.last
	e.last = snap
	for _, fn := range m.listeners {
		fn(prev, snap)
	}
}

// Snapshot returns the live snapshot of an open plot, falling back to the
// store for plots opened elsewhere.
func (m *Manager) Snapshot(ctx context.Context, plotID string) (*domain.Snapshot, error) {
	if e, err := m.entry(plotID); err == nil {
		snap := e.endpoint.Snapshot()
		return &snap, nil
	}
	return m.store.Load(ctx, plotID)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.PlotStore {
	return m.store
}
