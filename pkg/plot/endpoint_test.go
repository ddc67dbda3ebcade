package plot

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint_NewIsCreated(t *testing.T) {
	surface := &fakeSurface{}
	e := New("plot-1", surface)

	assert.Equal(t, domain.PhaseCreated, e.Phase())
	assert.False(t, e.AcceptingEvents())
	assert.Same(t, surface, e.Canvas())
	assert.Equal(t, "plot-1", e.ID())
}

func TestEndpoint_MarkSurfaceReadyOnce(t *testing.T) {
	var phases []domain.Phase
	e := New("plot-1", &fakeSurface{}, WithLifecycleHooks(domain.LifecycleHooks{
		OnPhase: func(ev *domain.SurfaceEvent) { phases = append(phases, ev.Phase) },
	}))

	assert.True(t, e.MarkSurfaceReady())
	assert.False(t, e.MarkSurfaceReady(), "Created -> Ready happens exactly once")
	assert.Equal(t, domain.PhaseReady, e.Phase())
	assert.Equal(t, []domain.Phase{domain.PhaseReady}, phases)
}

// Scenario 1: a killed client is reported as not responding without invalidation.
func TestEndpoint_ClientDiesWithoutInvalidate(t *testing.T) {
	ctx := context.Background()
	e, _ := newReadyEndpoint()
	clientA := newFakeClient(true)

	e.Bind(clientA, 100, "A")
	assert.True(t, e.ClientValidAndResponding(ctx))

	clientA.kill()
	assert.False(t, e.ClientValidAndResponding(ctx))

	info, bound := e.ClientInfo()
	assert.True(t, bound, "binding survives until invalidated")
	assert.Equal(t, domain.ClientInfo{PID: 100, Name: "A"}, info)
}

func TestEndpoint_StagedBind(t *testing.T) {
	ctx := context.Background()
	e, _ := newReadyEndpoint()
	client := newFakeClient(true)

	e.SetClient(client)
	info, bound := e.ClientInfo()
	assert.True(t, bound)
	assert.Equal(t, domain.ClientInfo{}, info, "placeholder metadata before SetClientInfo")

	e.SetClientInfo("gnuplot", 321)
	info, _ = e.ClientInfo()
	assert.Equal(t, domain.ClientInfo{PID: 321, Name: "gnuplot"}, info)
	assert.True(t, e.ClientValidAndResponding(ctx), "identity is untouched by SetClientInfo")
}

func TestEndpoint_SetClientInfoWithoutClient(t *testing.T) {
	e, _ := newReadyEndpoint()

	e.SetClientInfo("ghost", 9)

	_, bound := e.ClientInfo()
	assert.False(t, bound)
	assert.Equal(t, domain.ClientInfo{}, e.Snapshot().Client)
}

func TestEndpoint_InvalidateClientIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _ := newReadyEndpoint()
	e.Bind(newFakeClient(true), 100, "A")

	assert.True(t, e.InvalidateClient())
	assert.False(t, e.ClientValidAndResponding(ctx))
	assert.False(t, e.InvalidateClient())
	assert.False(t, e.ClientValidAndResponding(ctx))
}

// Scenario 2: the gate is closed, a well-formed event is dropped.
func TestEndpoint_ProcessEventWhileNotAccepting(t *testing.T) {
	var drops []string
	e, surface := newReadyEndpoint(WithLifecycleHooks(domain.LifecycleHooks{
		OnDrop: func(ev *domain.DispatchEvent) { drops = append(drops, ev.Reason) },
	}))
	require.False(t, e.AcceptingEvents())

	for _, text := range []string{"mouseDown 10,20", "keyDown q", "", "garbage!!"} {
		e.ProcessEvent(text)
	}

	_, dispatched := surface.counts()
	assert.Zero(t, dispatched)
	assert.Len(t, drops, 4)
	for _, reason := range drops {
		assert.Equal(t, domain.ReasonNotAccepting, reason)
	}
}

// Scenario 3: the gate is open, the event reaches the surface parsed.
func TestEndpoint_ProcessEventWhileAccepting(t *testing.T) {
	var dispatched []*domain.DispatchEvent
	e, surface := newReadyEndpoint(WithLifecycleHooks(domain.LifecycleHooks{
		OnDispatch: func(ev *domain.DispatchEvent) { dispatched = append(dispatched, ev) },
	}))
	require.True(t, e.SetAcceptingEvents(true))

	e.ProcessEvent("mouseDown 10,20")

	require.Len(t, surface.dispatched, 1)
	assert.Equal(t, domain.Event{Kind: "mouseDown", Payload: "10,20"}, surface.dispatched[0])
	require.Len(t, dispatched, 1)
	assert.Equal(t, "plot-1", dispatched[0].PlotID)
	assert.Equal(t, "mouseDown", dispatched[0].Kind)
}

func TestEndpoint_ProcessEventPreservesOrder(t *testing.T) {
	e, surface := newReadyEndpoint()
	e.SetAcceptingEvents(true)

	e.ProcessEvent("mouseDown 1,1")
	e.ProcessEvent("mouseDragged 2,2")
	e.ProcessEvent("mouseUp 3,3")

	kinds := make([]string, 0, len(surface.dispatched))
	for _, ev := range surface.dispatched {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []string{"mouseDown", "mouseDragged", "mouseUp"}, kinds)
}

func TestEndpoint_UnrecognizedEventIgnored(t *testing.T) {
	var reasons []string
	e, surface := newReadyEndpoint(WithLifecycleHooks(domain.LifecycleHooks{
		OnDrop: func(ev *domain.DispatchEvent) { reasons = append(reasons, ev.Reason) },
	}))
	e.SetAcceptingEvents(true)

	assert.NotPanics(t, func() {
		e.ProcessEvent("")
		e.ProcessEvent("12 34")
		e.ProcessEvent("{not an event}")
	})

	_, dispatched := surface.counts()
	assert.Zero(t, dispatched)
	assert.Equal(t, []string{domain.ReasonUnrecognized, domain.ReasonUnrecognized, domain.ReasonUnrecognized}, reasons)
}

func TestEndpoint_EventKindAllowList(t *testing.T) {
	e, surface := newReadyEndpoint(WithEventKinds("mouseDown", "keyDown"))
	e.SetAcceptingEvents(true)

	e.ProcessEvent("mouseDown 1,2")
	e.ProcessEvent("scroll 0,-1")
	e.ProcessEvent("keyDown a")

	require.Len(t, surface.dispatched, 2)
	assert.Equal(t, "mouseDown", surface.dispatched[0].Kind)
	assert.Equal(t, "keyDown", surface.dispatched[1].Kind)
}

func TestEndpoint_MaxEventSize(t *testing.T) {
	e, surface := newReadyEndpoint(WithMaxEventSize(10))
	e.SetAcceptingEvents(true)

	e.ProcessEvent("keyDown a")
	e.ProcessEvent("keyDown abcdef")

	require.Len(t, surface.dispatched, 1)
	assert.Equal(t, "a", surface.dispatched[0].Payload)
}

// Scenario 4: refresh before the surface is ready is ignored, then counts exactly one.
func TestEndpoint_RefreshViewFollowsSurfaceReadiness(t *testing.T) {
	var skipped int
	surface := &fakeSurface{}
	e := New("plot-1", surface, WithLifecycleHooks(domain.LifecycleHooks{
		OnRedraw: func(ev *domain.SurfaceEvent) {
			if ev.Skipped {
				skipped++
			}
		},
	}))

	e.RefreshView()
	redraws, _ := surface.counts()
	assert.Zero(t, redraws)
	assert.Equal(t, 1, skipped)

	e.MarkSurfaceReady()
	e.RefreshView()
	redraws, _ = surface.counts()
	assert.Equal(t, 1, redraws)
}

func TestEndpoint_RefreshViewIndependentOfGateAndClient(t *testing.T) {
	e, surface := newReadyEndpoint()

	e.RefreshView()
	e.SetAcceptingEvents(true)
	e.RefreshView()
	e.Bind(newFakeClient(false), 1, "dead")
	e.RefreshView()
	e.SetAcceptingEvents(false)
	e.InvalidateClient()
	e.RefreshView()

	redraws, _ := surface.counts()
	assert.Equal(t, 4, redraws, "one redraw per call regardless of gate or client")
}

func TestEndpoint_GateAndConnectionAreIndependent(t *testing.T) {
	ctx := context.Background()
	e, _ := newReadyEndpoint()

	// Gate without a client.
	assert.True(t, e.SetAcceptingEvents(true))
	_, bound := e.ClientInfo()
	assert.False(t, bound)

	// Binding does not touch the gate.
	e.Bind(newFakeClient(true), 7, "seven")
	assert.True(t, e.AcceptingEvents())

	// Toggling the gate does not touch the binding.
	e.SetAcceptingEvents(false)
	info, bound := e.ClientInfo()
	assert.True(t, bound)
	assert.Equal(t, 7, info.PID)
	assert.True(t, e.ClientValidAndResponding(ctx))

	// Invalidating does not touch the gate.
	e.SetAcceptingEvents(true)
	e.InvalidateClient()
	assert.True(t, e.AcceptingEvents())
}

func TestEndpoint_GateClosedUntilReady(t *testing.T) {
	e := New("plot-1", &fakeSurface{})

	assert.False(t, e.SetAcceptingEvents(true))
	assert.False(t, e.AcceptingEvents())

	e.MarkSurfaceReady()
	assert.True(t, e.SetAcceptingEvents(true))
}

func TestEndpoint_CloseClearsClientAndGate(t *testing.T) {
	var invalidated, phases int
	e, _ := newReadyEndpoint(WithLifecycleHooks(domain.LifecycleHooks{
		OnInvalidate: func(*domain.ClientEvent) { invalidated++ },
		OnPhase:      func(*domain.SurfaceEvent) { phases++ },
	}))
	phases = 0
	e.SetAcceptingEvents(true)
	e.Bind(newFakeClient(true), 100, "A")

	e.Close()

	snap := e.Snapshot()
	assert.Equal(t, domain.PhaseClosed, snap.Phase)
	assert.False(t, snap.Accepting)
	assert.False(t, snap.ClientBound)
	assert.Zero(t, snap.Client)
	assert.Equal(t, 1, invalidated)
	assert.Equal(t, 1, phases)
}

func TestEndpoint_UseAfterCloseFailsLoudly(t *testing.T) {
	ctx := context.Background()
	e, _ := newReadyEndpoint()
	e.Close()

	ops := map[string]func(){
		"Bind":                     func() { e.Bind(newFakeClient(true), 1, "x") },
		"SetClient":                func() { e.SetClient(newFakeClient(true)) },
		"SetClientInfo":            func() { e.SetClientInfo("x", 1) },
		"ClientValidAndResponding": func() { e.ClientValidAndResponding(ctx) },
		"InvalidateClient":         func() { e.InvalidateClient() },
		"AcceptingEvents":          func() { e.AcceptingEvents() },
		"SetAcceptingEvents":       func() { e.SetAcceptingEvents(true) },
		"ProcessEvent":             func() { e.ProcessEvent("mouseDown 1,1") },
		"RefreshView":              func() { e.RefreshView() },
		"Canvas":                   func() { e.Canvas() },
		"MarkSurfaceReady":         func() { e.MarkSurfaceReady() },
		"Close":                    func() { e.Close() },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				require.NotNil(t, r, "%s after Close must panic", name)
				err, ok := r.(error)
				require.True(t, ok)
				assert.True(t, errors.Is(err, domain.ErrEndpointClosed))
			}()
			op()
		})
	}

	// Accessors used for inspection keep working.
	assert.NotPanics(t, func() {
		e.Phase()
		e.Snapshot()
	})
}

func TestEndpoint_ProbeHook(t *testing.T) {
	ctx := context.Background()
	var results []bool
	e, _ := newReadyEndpoint(WithLifecycleHooks(domain.LifecycleHooks{
		OnProbe: func(ev *domain.ClientEvent) { results = append(results, ev.Responding) },
	}))

	e.ClientValidAndResponding(ctx)
	client := newFakeClient(true)
	e.Bind(client, 1, "one")
	e.ClientValidAndResponding(ctx)

	assert.Equal(t, []bool{false, true}, results)
	assert.Equal(t, int32(1), client.probes.Load())
}
