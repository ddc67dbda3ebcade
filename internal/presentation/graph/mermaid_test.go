package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/plotlink/internal/presentation/graph"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		snaps    []*domain.Snapshot
		contains []string
		excludes []string
	}{
		{
			name:     "Empty",
			snaps:    nil,
			contains: []string{"graph LR\n"},
			excludes: []string{"classDef"},
		},
		{
			name: "Phase Shapes",
			snaps: []*domain.Snapshot{
				{PlotID: "a", Phase: domain.PhaseCreated},
				{PlotID: "b", Phase: domain.PhaseReady},
				{PlotID: "c", Phase: domain.PhaseClosed},
			},
			contains: []string{
				`plot_a[/"a <br/> created"/]`,
				`plot_b["b <br/> ready"]`,
				`plot_c[["c <br/> closed"]]`,
				"class plot_a created;",
				"class plot_b ready;",
				"class plot_c closed;",
			},
		},
		{
			name: "Client Edges",
			snaps: []*domain.Snapshot{
				{PlotID: "open", Phase: domain.PhaseReady, Accepting: true, ClientBound: true,
					Client: domain.ClientInfo{PID: 7, Name: "gnuplot"}},
				{PlotID: "shut", Phase: domain.PhaseReady, ClientBound: true},
			},
			contains: []string{
				`plot_open_client(("gnuplot <br/> pid 7"))`,
				"plot_open_client -- events --> plot_open",
				`plot_shut_client(("client <br/> pid 0"))`,
				"plot_shut_client -. gated .-> plot_shut",
			},
		},
		{
			name: "ID Sanitization",
			snaps: []*domain.Snapshot{
				{PlotID: "fig-1.scatter plot", Phase: domain.PhaseReady},
			},
			contains: []string{`plot_fig_1_scatter_plot["fig-1.scatter plot <br/> ready"]`},
		},
		{
			name: "Unbound Plot Has No Client",
			snaps: []*domain.Snapshot{
				{PlotID: "lonely", Phase: domain.PhaseReady, Client: domain.ClientInfo{PID: 3}},
			},
			excludes: []string{"_client"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.snaps)
			assert.True(t, strings.HasPrefix(got, "graph LR\n"))
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, got, unwanted)
			}
		})
	}
}
