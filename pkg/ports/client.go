package ports

import "context"

// Responder is the capability a remote drawing client must expose.
// IsResponding is a synchronous liveness probe: it reports whether the client
// process is alive and answering. It never fails; gone or unresponsive is false.
type Responder interface {
	IsResponding(ctx context.Context) bool
}

// ResponderFunc adapts a plain function to a Responder.
type ResponderFunc func(ctx context.Context) bool

func (f ResponderFunc) IsResponding(ctx context.Context) bool { return f(ctx) }
