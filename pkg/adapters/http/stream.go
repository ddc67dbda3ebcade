package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/domain"
)

const subscriberBuffer = 16

// StreamManager fans snapshot diffs out to SSE watchers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // PlotID -> Set of Channels
	logger      *slog.Logger
}

// StreamOption configures a StreamManager.
type StreamOption func(*StreamManager)

// WithStreamLogger configures the structured logger.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(sm *StreamManager) {
		sm.logger = logger
	}
}

func NewStreamManager(opts ...StreamOption) *StreamManager {
	sm := &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Subscribe registers a watcher of plotID. The returned func unsubscribes and
// closes the channel.
func (sm *StreamManager) Subscribe(plotID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, subscriberBuffer)
	if _, ok := sm.subscribers[plotID]; !ok {
		sm.subscribers[plotID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[plotID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[plotID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, plotID)
				}
			}
		})
	}
}

// Subscribers returns the number of watchers of plotID.
func (sm *StreamManager) Subscribers(plotID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[plotID])
}

// Broadcast sends msg to every watcher of plotID without blocking.
func (sm *StreamManager) Broadcast(plotID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[plotID] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: watcher buffer full, dropping message", "plot_id", plotID)
		}
	}
}

// Publish broadcasts the diff between prev and next. It matches
// session.ChangeListener.
func (sm *StreamManager) Publish(prev, next *domain.Snapshot) {
	diff := domain.Diff(prev, next)
	if diff == nil {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		sm.logger.Error("SSE: diff encode failed", "plot_id", next.PlotID, "err", err)
		return
	}
	sm.Broadcast(next.PlotID, string(data))
}
