package ports

import "github.com/aretw0/plotlink/pkg/domain"

// Surface is the rendering sink a plot endpoint drives.
// It owns the drawable model; the endpoint only asks it to redraw.
// Failures inside a surface are its own concern and are not reported back.
type Surface interface {
	// IsReady reports whether the one-time surface setup has completed.
	IsReady() bool

	// Redraw repaints the current model content.
	Redraw()

	// Dispatch delivers a parsed client event to the surface's event handler.
	Dispatch(ev domain.Event)
}
