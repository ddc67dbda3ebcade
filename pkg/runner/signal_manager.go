package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalManager ties a context to SIGINT and SIGTERM for the CLI commands
// that host runners (serve) or read client input (send).
type SignalManager struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalManager starts listening for signals on top of parent.
func NewSignalManager(parent context.Context) *SignalManager {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return &SignalManager{ctx: ctx, cancel: cancel}
}

// Context is cancelled when a signal arrives or Stop is called.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Stop releases the signal listener and cancels the context.
func (sm *SignalManager) Stop() {
	sm.cancel()
}

// CheckRace gives a pending interrupt a short window to land after a read error.
// On some terminals Ctrl+C surfaces as EOF on stdin slightly before the signal.
func (sm *SignalManager) CheckRace() {
	if sm.ctx.Err() != nil {
		return
	}
	select {
	case <-sm.ctx.Done():
	case <-time.After(100 * time.Millisecond):
	}
}
