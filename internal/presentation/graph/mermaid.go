package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/plotlink/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of plots and their bound clients.
// Shapes follow the phase:
// - Created: [/Parallelogram/] (waiting for surface setup)
// - Ready: [Rectangle]
// - Closed: [[Subroutine]]
// A client edge is solid while the gate accepts events and dotted otherwise.
func GenerateMermaid(snaps []*domain.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, snap := range snaps {
		safeID := "plot_" + sanitizeMermaidID(snap.PlotID)

		opener, closer := "[", "]"
		switch snap.Phase {
		case domain.PhaseCreated:
			opener, closer = "[/", "/]"
		case domain.PhaseClosed:
			opener, closer = "[[", "]]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s <br/> %s\"%s\n", safeID, opener, escapeLabel(snap.PlotID), snap.Phase, closer))

		if !snap.ClientBound {
			continue
		}
		clientID := safeID + "_client"
		name := snap.Client.Name
		if name == "" {
			name = "client"
		}
		sb.WriteString(fmt.Sprintf("    %s((\"%s <br/> pid %d\"))\n", clientID, escapeLabel(name), snap.Client.PID))

		arrow := "-. gated .->"
		if snap.Accepting {
			arrow = "-- events -->"
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", clientID, arrow, safeID))
	}

	if len(snaps) > 0 {
		sb.WriteString("\n    %% Phase Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds.
		sb.WriteString("    classDef created fill:#fff8e1,stroke:#f9a825,color:#000;\n")
		sb.WriteString("    classDef ready fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef closed fill:#eceff1,stroke:#607d8b,color:#000;\n")
		for _, snap := range snaps {
			sb.WriteString(fmt.Sprintf("    class plot_%s %s;\n", sanitizeMermaidID(snap.PlotID), snap.Phase))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
