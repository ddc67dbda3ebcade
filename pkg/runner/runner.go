package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/plot"
)

var (
	// ErrRunnerStopped is returned when a message is offered to a stopped runner.
	ErrRunnerStopped = errors.New("runner stopped")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("runner already running")
)

type messageKind int

const (
	msgEvent messageKind = iota
	msgRefresh
	msgCall
)

type message struct {
	kind messageKind
	text string
	fn   func(*plot.Endpoint)
	done chan struct{}
}

// Runner owns the dispatch goroutine of one endpoint.
type Runner struct {
	endpoint   *plot.Endpoint
	bufferSize int
	coalesce   bool
	logger     *slog.Logger

	queue    chan message
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	started  atomic.Bool

	// mu orders senders against shutdown so nothing is enqueued after the final drain.
	mu      sync.RWMutex
	stopped bool
}

// New creates a Runner for the endpoint. Call Run to start dispatching.
func New(endpoint *plot.Endpoint, opts ...Option) *Runner {
	r := &Runner{
		endpoint:   endpoint,
		bufferSize: DefaultBufferSize,
		logger:     logging.NewNop(),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan message, r.bufferSize)
	r.logger = r.logger.With("plot_id", endpoint.ID())
	return r
}

// Endpoint returns the endpoint this runner drives.
func (r *Runner) Endpoint() *plot.Endpoint {
	return r.endpoint
}

// Run dispatches queued messages until ctx is cancelled or Stop is called.
// Messages already queued at that point are still applied before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(r.done)

	var pending *message
	for {
		var m message
		if pending != nil {
			m, pending = *pending, nil
		} else {
			select {
			case m = <-r.queue:
			case <-ctx.Done():
				r.shutdown()
				r.drain()
				r.logger.Debug("runner stopped", "cause", ctx.Err())
				return nil
			case <-r.quit:
				r.shutdown()
				r.drain()
				r.logger.Debug("runner stopped")
				return nil
			}
		}
		pending = r.handle(m)
	}
}

// Stop stops accepting messages and waits for the queue to drain.
// It must not be called from a function passed to Do or Call.
func (r *Runner) Stop() {
	r.shutdown()
	if r.started.Load() {
		<-r.done
	}
}

// Post queues inbound event text for the endpoint.
func (r *Runner) Post(text string) error {
	return r.enqueue(message{kind: msgEvent, text: text})
}

// Refresh queues a redraw request.
func (r *Runner) Refresh() error {
	return r.enqueue(message{kind: msgRefresh})
}

// Do queues fn to run on the dispatch goroutine and returns immediately.
func (r *Runner) Do(fn func(*plot.Endpoint)) error {
	return r.enqueue(message{kind: msgCall, fn: fn})
}

// Call queues fn and waits until it has run or ctx is done.
func (r *Runner) Call(ctx context.Context, fn func(*plot.Endpoint)) error {
	done := make(chan struct{})
	if err := r.enqueue(message{kind: msgCall, fn: fn, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Probe checks client liveness off the dispatch goroutine. The channel
// receives exactly one value; a probe that outlives timeout reports false.
// A non-positive timeout waits as long as ctx allows.
func (r *Runner) Probe(ctx context.Context, timeout time.Duration) <-chan bool {
	out := make(chan bool, 1)

	probeCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		probeCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	result := make(chan bool, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				err, ok := rec.(error)
				if !ok || !errors.Is(err, domain.ErrEndpointClosed) {
					panic(rec)
				}
				result <- false
			}
		}()
		result <- r.endpoint.ClientValidAndResponding(probeCtx)
	}()

	go func() {
		defer cancel()
		select {
		case ok := <-result:
			out <- ok
		case <-probeCtx.Done():
			r.logger.Debug("probe timed out", "timeout", timeout)
			out <- false
		}
	}()
	return out
}

func (r *Runner) enqueue(m message) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrRunnerStopped
	}
	select {
	case r.queue <- m:
		return nil
	case <-r.quit:
		return ErrRunnerStopped
	}
}

func (r *Runner) shutdown() {
	r.quitOnce.Do(func() { close(r.quit) })
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

func (r *Runner) drain() {
	var pending *message
	for {
		if pending != nil {
			m := *pending
			pending = r.handle(m)
			continue
		}
		select {
		case m := <-r.queue:
			pending = r.handle(m)
		default:
			return
		}
	}
}

// handle applies one message. With coalescing on, a refresh absorbs the
// refresh requests queued right behind it; the first other message read while
// doing so is returned to be handled next.
func (r *Runner) handle(m message) *message {
	switch m.kind {
	case msgEvent:
		r.endpoint.ProcessEvent(m.text)
	case msgCall:
		m.fn(r.endpoint)
		if m.done != nil {
			close(m.done)
		}
	case msgRefresh:
		if !r.coalesce {
			r.endpoint.RefreshView()
			return nil
		}
		var next *message
		merged := 0
	collect:
		for {
			select {
			case n := <-r.queue:
				if n.kind == msgRefresh {
					merged++
					continue
				}
				next = &n
				break collect
			default:
				break collect
			}
		}
		if merged > 0 {
			r.logger.Debug("refresh requests coalesced", "merged", merged)
		}
		r.endpoint.RefreshView()
		return next
	}
	return nil
}
