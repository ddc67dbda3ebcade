package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aretw0/plotlink/internal/presentation/graph"
	"github.com/aretw0/plotlink/internal/presentation/tui"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// PlotTable renders snapshots as a markdown table. Ages are relative to now.
func PlotTable(snaps []*domain.Snapshot, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("| Plot | Phase | Accepting | Client | Updated |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, snap := range snaps {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			snap.PlotID, snap.Phase, yesNo(snap.Accepting), clientLabel(snap), age(snap.UpdatedAt, now))
	}
	return sb.String()
}

// PlotReport renders one snapshot as a markdown document, with a Mermaid
// diagram when withGraph is set.
func PlotReport(snap *domain.Snapshot, now time.Time, withGraph bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Plot `%s`\n\n", snap.PlotID)
	fmt.Fprintf(&sb, "- **Phase:** %s\n", snap.Phase)
	fmt.Fprintf(&sb, "- **Surface ready:** %s\n", yesNo(snap.SurfaceReady))
	fmt.Fprintf(&sb, "- **Accepting events:** %s\n", yesNo(snap.Accepting))
	fmt.Fprintf(&sb, "- **Client:** %s\n", clientLabel(snap))
	fmt.Fprintf(&sb, "- **Updated:** %s\n", age(snap.UpdatedAt, now))

	if withGraph {
		sb.WriteString("\n```mermaid\n")
		sb.WriteString(graph.GenerateMermaid([]*domain.Snapshot{snap}))
		sb.WriteString("```\n")
	}
	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func clientLabel(snap *domain.Snapshot) string {
	if !snap.ClientBound {
		return "none"
	}
	name := snap.Client.Name
	if name == "" {
		name = "unnamed"
	}
	if snap.Client.PID > 0 {
		return fmt.Sprintf("%s (pid %d)", name, snap.Client.PID)
	}
	return name
}

func age(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// WriteMarkdown writes markdown to w, rendered with glamour when w is a terminal.
func WriteMarkdown(w io.Writer, markdown string) error {
	if !IsTerminal(w) {
		_, err := io.WriteString(w, markdown)
		return err
	}

	width := 0
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = cols
		}
	}
	render, err := tui.NewRenderer(width)
	if err != nil {
		return err
	}
	out, err := render(markdown)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
