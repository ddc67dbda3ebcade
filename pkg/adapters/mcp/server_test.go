package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aretw0/plotlink/pkg/adapters/memory"
	"github.com/aretw0/plotlink/pkg/adapters/surface"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/ports"
	"github.com/aretw0/plotlink/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Manager = (*session.Manager)(nil)

func setup(t *testing.T) (*Server, *session.Manager, *surface.Recorder) {
	t.Helper()
	ctx := context.Background()
	mgr := session.NewManager(memory.NewStore())
	t.Cleanup(func() { _ = mgr.CloseAll(ctx) })

	rec := surface.NewRecorder(true)
	_, err := mgr.Open(ctx, "p", rec)
	require.NoError(t, err)
	_, err = mgr.Open(ctx, "a", surface.NewRecorder(false))
	require.NoError(t, err)

	return NewServer(mgr, WithProbeTimeout(time.Second)), mgr, rec
}

func TestServer_ListAndStatus(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	list, err := s.handleListPlots(ctx, mcp.CallToolRequest{}, struct{}{})
	require.NoError(t, err)
	require.Len(t, list.Plots, 2)
	assert.Equal(t, "a", list.Plots[0].PlotID)
	assert.Equal(t, domain.PhaseCreated, list.Plots[0].Phase)
	assert.Equal(t, "p", list.Plots[1].PlotID)

	snap, err := s.handlePlotStatus(ctx, mcp.CallToolRequest{}, plotArgs{PlotID: "p"})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseReady, snap.Phase)

	_, err = s.handlePlotStatus(ctx, mcp.CallToolRequest{}, plotArgs{PlotID: "zzz"})
	assert.ErrorIs(t, err, domain.ErrPlotNotFound)

	_, err = s.handlePlotStatus(ctx, mcp.CallToolRequest{}, plotArgs{})
	assert.ErrorContains(t, err, "plot_id is required")
}

func TestServer_GateAndEvents(t *testing.T) {
	s, _, rec := setup(t)
	ctx := context.Background()
	req := mcp.CallToolRequest{}

	queued, err := s.handleProcessEvent(ctx, req, eventArgs{PlotID: "p", Text: "mouseDown 1,1"})
	require.NoError(t, err)
	assert.True(t, queued.Queued)

	acc, err := s.handleSetAccepting(ctx, req, acceptingArgs{PlotID: "p", Accepting: true})
	require.NoError(t, err)
	assert.True(t, acc.Accepting)

	acc, err = s.handleSetAccepting(ctx, req, acceptingArgs{PlotID: "a", Accepting: true})
	require.NoError(t, err)
	assert.False(t, acc.Accepting, "gate stays closed before the surface is ready")

	_, err = s.handleProcessEvent(ctx, req, eventArgs{PlotID: "p", Text: "keyDown x"})
	require.NoError(t, err)
	_, err = s.handleRefreshView(ctx, req, plotArgs{PlotID: "p"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.Redraws() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []domain.Event{{Kind: "keyDown", Payload: "x"}}, rec.Events(),
		"the event queued while the gate was closed is dropped")

	_, err = s.handleProcessEvent(ctx, req, eventArgs{PlotID: "nope", Text: "a"})
	assert.ErrorIs(t, err, domain.ErrPlotNotFound)
}

func TestServer_ClientTools(t *testing.T) {
	s, mgr, _ := setup(t)
	ctx := context.Background()
	req := mcp.CallToolRequest{}

	require.NoError(t, mgr.Bind(ctx, "p", ports.ResponderFunc(func(context.Context) bool { return true }), 42, "gnuplot"))

	probe, err := s.handleProbeClient(ctx, req, plotArgs{PlotID: "p"})
	require.NoError(t, err)
	assert.True(t, probe.Responding)

	cleared, err := s.handleInvalidateClient(ctx, req, plotArgs{PlotID: "p"})
	require.NoError(t, err)
	assert.True(t, cleared.Cleared)

	cleared, err = s.handleInvalidateClient(ctx, req, plotArgs{PlotID: "p"})
	require.NoError(t, err)
	assert.False(t, cleared.Cleared)

	probe, err = s.handleProbeClient(ctx, req, plotArgs{PlotID: "p"})
	require.NoError(t, err)
	assert.False(t, probe.Responding)
}

func TestServer_JSONRPC(t *testing.T) {
	s, _, _ := setup(t)
	ctx := context.Background()

	raw := func(t *testing.T, msg string) []byte {
		t.Helper()
		resp := s.MCPServer().HandleMessage(ctx, json.RawMessage(msg))
		data, err := json.Marshal(resp)
		require.NoError(t, err)
		return data
	}

	var tools struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`), &tools))
	names := make([]string, 0, len(tools.Result.Tools))
	for _, tool := range tools.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_plots", "plot_status", "process_event", "refresh_view",
		"set_accepting", "invalidate_client", "probe_client",
	}, names)

	var call struct {
		Result struct {
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw(t,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"set_accepting","arguments":{"plot_id":"p","accepting":true}}}`), &call))
	assert.False(t, call.Result.IsError)

	require.NoError(t, json.Unmarshal(raw(t,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"plot_status","arguments":{"plot_id":"missing"}}}`), &call))
	assert.True(t, call.Result.IsError)
}
