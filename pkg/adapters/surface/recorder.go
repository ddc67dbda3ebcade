package surface

import (
	"sync"

	"github.com/aretw0/plotlink/pkg/domain"
)

// Recorder is a headless Surface that counts redraws and keeps every
// dispatched event in order.
type Recorder struct {
	mu      sync.Mutex
	ready   bool
	redraws int
	events  []domain.Event
}

// NewRecorder creates a Recorder whose setup is complete when ready is true.
func NewRecorder(ready bool) *Recorder {
	return &Recorder{ready: ready}
}

func (r *Recorder) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// SetReady marks the one-time setup as complete or not.
func (r *Recorder) SetReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = ready
}

func (r *Recorder) Redraw() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redraws++
}

func (r *Recorder) Dispatch(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Redraws returns the number of redraws so far.
func (r *Recorder) Redraws() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.redraws
}

// Events returns a copy of the dispatched events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}
