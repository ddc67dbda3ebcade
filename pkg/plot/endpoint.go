package plot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/ports"
)

// Endpoint mediates between one remote drawing client and a rendering surface.
//
// It moves through three phases: Created (surface not ready, gate closed),
// Ready (surface ready, gate may toggle) and Closed (terminal). Soft misuse
// such as an unbound client, a dropped event or a premature refresh degrades to
// a no-op or a false return. Any protocol call after Close panics with an error
// wrapping domain.ErrEndpointClosed.
//
// The host is expected to drive an Endpoint from one dispatch goroutine
// (see runner.Runner); the internal mutex only keeps accessors race-free.
type Endpoint struct {
	id     string
	canvas ports.Surface
	kinds  map[string]struct{}
	limit  int // max event text size; 0 uses the domain default
	hooks  domain.LifecycleHooks
	logger *slog.Logger

	mu           sync.Mutex
	phase        domain.Phase
	surfaceReady bool
	accepting    bool
	conn         Connection
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Endpoint) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithMaxEventSize bounds the size of inbound event text. Larger text is
// dropped as unrecognised. A non-positive size keeps the default.
func WithMaxEventSize(size int) Option {
	return func(e *Endpoint) {
		if size > 0 {
			e.limit = size
		}
	}
}

// WithEventKinds restricts recognised event kinds to the given allow-list.
// With no kinds configured every well-formed kind is recognised.
func WithEventKinds(kinds ...string) Option {
	return func(e *Endpoint) {
		if len(kinds) == 0 {
			return
		}
		if e.kinds == nil {
			e.kinds = make(map[string]struct{}, len(kinds))
		}
		for _, k := range kinds {
			e.kinds[k] = struct{}{}
		}
	}
}

// New creates an endpoint in the Created phase for the given surface.
func New(id string, canvas ports.Surface, opts ...Option) *Endpoint {
	e := &Endpoint{
		id:     id,
		canvas: canvas,
		phase:  domain.PhaseCreated,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("plot_id", id)
	return e
}

// ID returns the plot identifier.
func (e *Endpoint) ID() string { return e.id }

// Canvas exposes the rendering surface. Ownership stays with the endpoint.
func (e *Endpoint) Canvas() ports.Surface {
	e.lockOpen("Canvas")
	defer e.mu.Unlock()
	return e.canvas
}

// Phase returns the current lifecycle phase. It is safe to call after Close.
func (e *Endpoint) Phase() domain.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Snapshot returns the serialisable view of the endpoint. It is safe to call after Close.
func (e *Endpoint) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	info, bound := e.conn.Info()
	return domain.Snapshot{
		PlotID:       e.id,
		Phase:        e.phase,
		SurfaceReady: e.surfaceReady,
		Accepting:    e.accepting,
		ClientBound:  bound,
		Client:       info,
		UpdatedAt:    time.Now().UTC(),
	}
}

// MarkSurfaceReady records completion of the one-time surface setup,
// moving Created to Ready. It reports whether the transition happened.
func (e *Endpoint) MarkSurfaceReady() bool {
	e.lockOpen("MarkSurfaceReady")
	if e.phase != domain.PhaseCreated {
		e.mu.Unlock()
		return false
	}
	e.phase = domain.PhaseReady
	e.surfaceReady = true
	e.mu.Unlock()

	e.logger.Debug("surface ready")
	if e.hooks.OnPhase != nil {
		e.hooks.OnPhase(&domain.SurfaceEvent{
			EventBase: domain.NewEventBase(domain.EventPhase, e.id),
			Phase:     domain.PhaseReady,
		})
	}
	return true
}

// Bind binds identity with its descriptive pid and name in one step.
func (e *Endpoint) Bind(identity ports.Responder, pid int, name string) {
	e.lockOpen("Bind")
	e.conn.Bind(identity, pid, name)
	e.mu.Unlock()

	e.logger.Debug("client bound", "pid", pid, "name", name)
	e.notifyBind(domain.ClientInfo{PID: pid, Name: name})
}

// SetClient binds identity with placeholder metadata. It is the first phase of
// a staged bind completed by SetClientInfo; callers serialise the pair.
func (e *Endpoint) SetClient(identity ports.Responder) {
	e.Bind(identity, 0, "")
}

// SetClientInfo fills in pid and name for the bound identity without replacing it.
// With no client bound the metadata has nothing to describe and is ignored.
func (e *Endpoint) SetClientInfo(name string, pid int) {
	e.lockOpen("SetClientInfo")
	ok := e.conn.describe(pid, name)
	e.mu.Unlock()

	if !ok {
		e.logger.Debug("client info ignored: no client bound", "pid", pid, "name", name)
		return
	}
	e.notifyBind(domain.ClientInfo{PID: pid, Name: name})
}

func (e *Endpoint) notifyBind(info domain.ClientInfo) {
	if e.hooks.OnBind != nil {
		e.hooks.OnBind(&domain.ClientEvent{
			EventBase: domain.NewEventBase(domain.EventClientBind, e.id),
			Client:    info,
		})
	}
}

// ClientInfo returns the bound client's metadata and whether a client is bound.
func (e *Endpoint) ClientInfo() (domain.ClientInfo, bool) {
	e.lockOpen("ClientInfo")
	defer e.mu.Unlock()
	return e.conn.Info()
}

// ClientValidAndResponding probes the bound client synchronously.
// The probe may block; run it off the dispatch goroutine when that matters.
func (e *Endpoint) ClientValidAndResponding(ctx context.Context) bool {
	e.lockOpen("ClientValidAndResponding")
	e.mu.Unlock()

	info, _ := e.conn.Info()
	ok := e.conn.IsValidAndResponding(ctx)
	if !ok {
		e.logger.Debug("client not responding", "pid", info.PID, "name", info.Name)
	}
	if e.hooks.OnProbe != nil {
		e.hooks.OnProbe(&domain.ClientEvent{
			EventBase:  domain.NewEventBase(domain.EventClientProbe, e.id),
			Client:     info,
			Responding: ok,
		})
	}
	return ok
}

// InvalidateClient clears the binding. It returns true if a client was bound.
func (e *Endpoint) InvalidateClient() bool {
	e.lockOpen("InvalidateClient")
	info, _ := e.conn.Info()
	cleared := e.conn.Invalidate()
	e.mu.Unlock()

	if cleared {
		e.logger.Debug("client invalidated", "pid", info.PID, "name", info.Name)
		e.notifyInvalidate(info)
	}
	return cleared
}

func (e *Endpoint) notifyInvalidate(info domain.ClientInfo) {
	if e.hooks.OnInvalidate != nil {
		e.hooks.OnInvalidate(&domain.ClientEvent{
			EventBase: domain.NewEventBase(domain.EventClientInvalidate, e.id),
			Client:    info,
			Cleared:   true,
		})
	}
}

// AcceptingEvents reports the state of the accept gate.
func (e *Endpoint) AcceptingEvents() bool {
	e.lockOpen("AcceptingEvents")
	defer e.mu.Unlock()
	return e.accepting
}

// SetAcceptingEvents opens or closes the accept gate and returns its new state.
// The gate stays closed until the surface is ready.
func (e *Endpoint) SetAcceptingEvents(accept bool) bool {
	e.lockOpen("SetAcceptingEvents")
	defer e.mu.Unlock()

	if accept && e.phase != domain.PhaseReady {
		e.logger.Debug("accept gate stays closed: surface not ready")
		return e.accepting
	}
	e.accepting = accept
	return e.accepting
}

// ProcessEvent parses event text and dispatches it to the surface.
// While the gate is closed the event is silently dropped. Unrecognised text is
// logged and ignored.
func (e *Endpoint) ProcessEvent(text string) {
	e.lockOpen("ProcessEvent")
	accepting := e.accepting
	canvas := e.canvas
	e.mu.Unlock()

	if !accepting {
		e.drop(domain.Event{}, domain.ReasonNotAccepting)
		return
	}

	ev, err := domain.ParseEventLimit(text, e.limit)
	if err == nil && e.kinds != nil {
		if _, ok := e.kinds[ev.Kind]; !ok {
			err = fmt.Errorf("%w: kind %q not handled", domain.ErrUnrecognizedEvent, ev.Kind)
		}
	}
	if err != nil {
		e.logger.Warn("ignoring unrecognized event", "err", err, "size", len(text))
		e.drop(ev, domain.ReasonUnrecognized)
		return
	}

	canvas.Dispatch(ev)
	if e.hooks.OnDispatch != nil {
		e.hooks.OnDispatch(&domain.DispatchEvent{
			EventBase: domain.NewEventBase(domain.EventDispatch, e.id),
			Kind:      ev.Kind,
			Payload:   ev.Payload,
		})
	}
}

func (e *Endpoint) drop(ev domain.Event, reason string) {
	e.logger.Debug("event dropped", "reason", reason, "kind", ev.Kind)
	if e.hooks.OnDrop != nil {
		e.hooks.OnDrop(&domain.DispatchEvent{
			EventBase: domain.NewEventBase(domain.EventDrop, e.id),
			Kind:      ev.Kind,
			Payload:   ev.Payload,
			Reason:    reason,
		})
	}
}

// RefreshView asks the surface to redraw its current model content.
// It does not depend on the gate or the client. Before the surface is ready
// the request is ignored, not deferred.
func (e *Endpoint) RefreshView() {
	e.lockOpen("RefreshView")
	ready := e.surfaceReady
	phase := e.phase
	canvas := e.canvas
	e.mu.Unlock()

	if !ready {
		e.logger.Debug("refresh ignored: surface not ready")
		if e.hooks.OnRedraw != nil {
			e.hooks.OnRedraw(&domain.SurfaceEvent{
				EventBase: domain.NewEventBase(domain.EventRedraw, e.id),
				Phase:     phase,
				Skipped:   true,
				Reason:    domain.ReasonSurfaceNotReady,
			})
		}
		return
	}

	canvas.Redraw()
	if e.hooks.OnRedraw != nil {
		e.hooks.OnRedraw(&domain.SurfaceEvent{
			EventBase: domain.NewEventBase(domain.EventRedraw, e.id),
			Phase:     phase,
		})
	}
}

// Close tears the endpoint down: the gate is forced closed and the client is
// invalidated before the phase becomes Closed. Closing twice is a lifecycle
// violation.
func (e *Endpoint) Close() {
	e.lockOpen("Close")
	e.accepting = false
	info, _ := e.conn.Info()
	cleared := e.conn.Invalidate()
	e.phase = domain.PhaseClosed
	e.mu.Unlock()

	e.logger.Debug("endpoint closed", "client_cleared", cleared)
	if cleared {
		e.notifyInvalidate(info)
	}
	if e.hooks.OnPhase != nil {
		e.hooks.OnPhase(&domain.SurfaceEvent{
			EventBase: domain.NewEventBase(domain.EventPhase, e.id),
			Phase:     domain.PhaseClosed,
		})
	}
}

// lockOpen acquires e.mu, panicking with the lock released when the endpoint is closed.
func (e *Endpoint) lockOpen(op string) {
	e.mu.Lock()
	if e.phase == domain.PhaseClosed {
		e.mu.Unlock()
		panic(fmt.Errorf("%w: %s on plot %q", domain.ErrEndpointClosed, op, e.id))
	}
}
