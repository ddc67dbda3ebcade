// Package process provides a client Responder backed by an operating-system
// process, for drawing clients that identify themselves only by pid.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/aretw0/plotlink/internal/logging"
	"github.com/shirou/gopsutil/v3/process"
)

// Responder reports a pid as responding while the process exists and is
// neither a zombie nor stopped.
type Responder struct {
	pid    int32
	logger *slog.Logger
}

// Option configures a Responder.
type Option func(*Responder)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Responder) {
		r.logger = logger
	}
}

// NewResponder creates a Responder for pid. Pids outside the positive int32
// range are rejected.
func NewResponder(pid int, opts ...Option) (*Responder, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	r := &Responder{
		pid:    int32(pid),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// PID returns the watched process id.
func (r *Responder) PID() int {
	return int(r.pid)
}

// IsResponding probes the process table. Lookup errors count as not responding.
func (r *Responder) IsResponding(ctx context.Context) bool {
	exists, err := process.PidExistsWithContext(ctx, r.pid)
	if err != nil || !exists {
		r.logger.Debug("process gone", "pid", r.pid, "err", err)
		return false
	}

	p, err := process.NewProcessWithContext(ctx, r.pid)
	if err != nil {
		r.logger.Debug("process lookup failed", "pid", r.pid, "err", err)
		return false
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		// Some platforms cannot report status; existence is all we know.
		return true
	}
	if slices.Contains(status, process.Zombie) || slices.Contains(status, process.Stop) {
		r.logger.Debug("process not responding", "pid", r.pid, "status", status)
		return false
	}
	return true
}

// Name returns the executable name of the process, or "" when unknown.
func (r *Responder) Name(ctx context.Context) string {
	p, err := process.NewProcessWithContext(ctx, r.pid)
	if err != nil {
		return ""
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ""
	}
	return name
}
