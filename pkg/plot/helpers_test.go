package plot

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aretw0/plotlink/pkg/domain"
)

// fakeClient is a Responder whose liveness is flipped by the test.
type fakeClient struct {
	alive  atomic.Bool
	probes atomic.Int32
}

func newFakeClient(alive bool) *fakeClient {
	c := &fakeClient{}
	c.alive.Store(alive)
	return c
}

func (c *fakeClient) IsResponding(ctx context.Context) bool {
	c.probes.Add(1)
	return c.alive.Load()
}

func (c *fakeClient) kill() { c.alive.Store(false) }

// fakeSurface records redraws and dispatched events.
type fakeSurface struct {
	mu         sync.Mutex
	ready      bool
	redraws    int
	dispatched []domain.Event
}

func (s *fakeSurface) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSurface) Redraw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redraws++
}

func (s *fakeSurface) Dispatch(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = append(s.dispatched, ev)
}

func (s *fakeSurface) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redraws, len(s.dispatched)
}

func newReadyEndpoint(opts ...Option) (*Endpoint, *fakeSurface) {
	surface := &fakeSurface{ready: true}
	e := New("plot-1", surface, opts...)
	e.MarkSurfaceReady()
	return e, surface
}
