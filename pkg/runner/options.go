package runner

import "log/slog"

// DefaultBufferSize is the default number of inbound messages queued per endpoint.
const DefaultBufferSize = 64

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithBufferSize sets the queue capacity. Non-positive values keep the default.
func WithBufferSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithCoalesceRefresh collapses consecutive queued refresh requests into one redraw.
// Events are never coalesced.
func WithCoalesceRefresh(enabled bool) Option {
	return func(r *Runner) {
		r.coalesce = enabled
	}
}
