package surface

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/muesli/termenv"
)

// Terminal is a Surface that prints each redraw and dispatched event as a
// coloured line. It is ready as soon as it is created.
type Terminal struct {
	out    *termenv.Output
	plotID string

	mu    sync.Mutex
	count int
}

// NewTerminal writes to w. Options such as termenv.WithProfile control colouring.
func NewTerminal(w io.Writer, plotID string, opts ...termenv.OutputOption) *Terminal {
	return &Terminal{
		out:    termenv.NewOutput(w, opts...),
		plotID: plotID,
	}
}

func (t *Terminal) IsReady() bool { return true }

func (t *Terminal) Redraw() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	t.line(t.out.String("redraw").Foreground(t.out.Color("#818cf8")), fmt.Sprintf("#%d", t.count))
}

func (t *Terminal) Dispatch(ev domain.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.line(t.out.String(ev.Kind).Bold().Foreground(t.out.Color("#f472b6")), ev.Payload)
}

func (t *Terminal) line(label termenv.Style, detail string) {
	prefix := t.out.String("[" + t.plotID + "]").Faint()
	stamp := time.Now().Format("15:04:05.000")
	if detail == "" {
		fmt.Fprintf(t.out, "%s %s %s\n", stamp, prefix, label)
		return
	}
	fmt.Fprintf(t.out, "%s %s %s %s\n", stamp, prefix, label, detail)
}
