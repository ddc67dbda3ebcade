package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/plotlink/pkg/adapters/memory"
	"github.com/aretw0/plotlink/pkg/adapters/surface"
	"github.com/aretw0/plotlink/pkg/adapters/ws"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*session.Manager, *surface.Recorder, string) {
	t.Helper()
	ctx := context.Background()
	mgr := session.NewManager(memory.NewStore())
	rec := surface.NewRecorder(true)
	_, err := mgr.Open(ctx, "p", rec)
	require.NoError(t, err)
	_, err = mgr.SetAccepting(ctx, "p", true)
	require.NoError(t, err)

	handler := ws.NewHandler(mgr, ws.WithHelloTimeout(time.Second))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /plots/{id}/client/ws
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		handler.ServeClient(w, r, parts[1])
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.CloseAll(ctx)
	})
	return mgr, rec, srv.URL
}

func dial(t *testing.T, base, plotID string, hello ws.Hello) (*ws.Client, error) {
	t.Helper()
	url, err := ws.ClientURL(base, plotID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return ws.Dial(ctx, url, hello)
}

func TestClientURL(t *testing.T) {
	tests := []struct {
		base, plotID, want string
		wantErr            bool
	}{
		{"http://localhost:8080", "p1", "ws://localhost:8080/plots/p1/client/ws", false},
		{"https://example.com/api", "p1", "wss://example.com/api/plots/p1/client/ws", false},
		{"ws://h:1", "my plot", "ws://h:1/plots/my%20plot/client/ws", false},
		{"ftp://h", "p", "", true},
		{"http://h", "a/b", "", true},
		{"localhost:8080", "p", "", true},
	}
	for _, tt := range tests {
		got, err := ws.ClientURL(tt.base, tt.plotID)
		if tt.wantErr {
			assert.Error(t, err, tt.base)
			continue
		}
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got)
	}
}

func TestWS_BindSendProbe(t *testing.T) {
	mgr, rec, base := setup(t)
	ctx := context.Background()

	client, err := dial(t, base, "p", ws.Hello{PID: 4242, Name: "gnuplot"})
	require.NoError(t, err)
	assert.Equal(t, "p", client.PlotID())

	ep, err := mgr.Get("p")
	require.NoError(t, err)
	info, bound := ep.ClientInfo()
	require.True(t, bound)
	assert.Equal(t, domain.ClientInfo{PID: 4242, Name: "gnuplot"}, info)

	require.NoError(t, client.Send("mouseDown 10,20"))
	require.NoError(t, client.Send("mouseUp 10,20"))
	assert.Eventually(t, func() bool { return len(rec.Events()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "mouseDown", rec.Events()[0].Kind)

	ok, err := mgr.Probe(ctx, "p", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "a connected client answers pings")

	require.NoError(t, client.Close())
	assert.Eventually(t, func() bool {
		ok, _ := mgr.Probe(ctx, "p", 500*time.Millisecond)
		return !ok
	}, 3*time.Second, 50*time.Millisecond)

	_, bound = ep.ClientInfo()
	assert.True(t, bound, "disconnect alone does not invalidate")
}

func TestWS_UnknownPlotRejected(t *testing.T) {
	_, _, base := setup(t)

	_, err := dial(t, base, "missing", ws.Hello{PID: 1, Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind rejected")
}

func TestWS_PlotClosedDropsClient(t *testing.T) {
	mgr, _, base := setup(t)

	client, err := dial(t, base, "p", ws.Hello{PID: 1, Name: "x"})
	require.NoError(t, err)

	require.NoError(t, mgr.Close(context.Background(), "p"))
	_ = client.Send("keyDown a")

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected after plot closed")
	}
}
