package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/plotlink/internal/config"
	"github.com/aretw0/plotlink/internal/logging"
	"github.com/aretw0/plotlink/pkg/adapters/surface"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/persistence/middleware"
	"github.com/aretw0/plotlink/pkg/plot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	snap := &domain.Snapshot{PlotID: "p", Phase: domain.PhaseReady, ClientBound: true,
		Client: domain.ClientInfo{PID: 3, Name: "secret-tool"}}

	t.Run("Memory", func(t *testing.T) {
		b, err := OpenBackend(ctx, config.Default())
		require.NoError(t, err)
		defer b.Close()
		assert.Nil(t, b.Locker)
		require.NoError(t, b.Store.Save(ctx, "p", snap))
	})

	t.Run("File", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Kind = "file"
		cfg.Store.Dir = t.TempDir()
		b, err := OpenBackend(ctx, cfg)
		require.NoError(t, err)
		require.NoError(t, b.Store.Save(ctx, "p", snap))

		ids, err := b.Store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"p"}, ids)
	})

	t.Run("Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default()
		cfg.Store.Kind = "redis"
		cfg.Store.Redis.Addr = mr.Addr()
		b, err := OpenBackend(ctx, cfg)
		require.NoError(t, err)
		defer b.Close()

		require.NotNil(t, b.Locker)
		require.NoError(t, b.Store.Save(ctx, "p", snap))
		assert.True(t, mr.Exists(cfg.Store.Redis.Prefix+"p"))

		unlock, err := b.Locker.Lock(ctx, "p", time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	})

	t.Run("Redis Unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		cfg := config.Default()
		cfg.Store.Kind = "redis"
		cfg.Store.Redis.Addr = addr
		_, err := OpenBackend(ctx, cfg)
		assert.ErrorContains(t, err, "failed to reach redis")
	})

	t.Run("Mask", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.MaskPatterns = []string{"^secret"}
		b, err := OpenBackend(ctx, cfg)
		require.NoError(t, err)
		require.NoError(t, b.Store.Save(ctx, "p", snap))

		got, err := b.Store.Load(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, middleware.Masked, got.Client.Name)
		assert.Equal(t, "secret-tool", snap.Client.Name, "caller's snapshot untouched")
	})

	t.Run("Errors", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Kind = "tape"
		_, err := OpenBackend(ctx, cfg)
		assert.ErrorContains(t, err, "unknown store kind")

		cfg = config.Default()
		cfg.Store.MaskPatterns = []string{"("}
		_, err = OpenBackend(ctx, cfg)
		assert.Error(t, err)
	})
}

func TestHost(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Events.Kinds = []string{"mouseDown"}

	var out bytes.Buffer
	h, err := NewHost(ctx, cfg, logging.NewNop(), &out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close(ctx) })

	require.NoError(t, h.OpenPlots(ctx, true, "a", "b"))
	assert.ErrorIs(t, h.OpenPlots(ctx, false, "a"), domain.ErrPlotExists)

	snap, err := h.Manager.Snapshot(ctx, "a")
	require.NoError(t, err)
	assert.True(t, snap.Accepting)

	handler, err := h.Handler()
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/plots", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	req = httptest.NewRequest("GET", "/metrics", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "plotlink_plots_open 2")
	assert.Contains(t, w.Body.String(), "go_goroutines")

	require.NoError(t, h.Close(ctx))
	assert.Empty(t, h.Manager.List())
}

func TestHost_Surface(t *testing.T) {
	cfg := config.Default()
	h := &Host{Config: cfg, out: &bytes.Buffer{}}

	_, ok := h.Surface("p").(*surface.Recorder)
	assert.True(t, ok)

	cfg.Server.Surface = "terminal"
	_, ok = h.Surface("p").(*surface.Terminal)
	assert.True(t, ok)
}

func TestHost_EventSizeLimitIsPerHost(t *testing.T) {
	ctx := context.Background()
	text := "keyDown " + strings.Repeat("x", 32)

	dispatched := func(maxSize int) []domain.Event {
		cfg := config.Default()
		cfg.Events.MaxSize = maxSize
		h, err := NewHost(ctx, cfg, logging.NewNop(), &bytes.Buffer{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = h.Close(ctx) })

		rec := surface.NewRecorder(true)
		_, err = h.Manager.Open(ctx, "p", rec)
		require.NoError(t, err)
		_, err = h.Manager.SetAccepting(ctx, "p", true)
		require.NoError(t, err)
		require.NoError(t, h.Manager.Post("p", text))

		r, err := h.Manager.Runner("p")
		require.NoError(t, err)
		require.NoError(t, r.Call(ctx, func(*plot.Endpoint) {}))
		return rec.Events()
	}

	small := dispatched(16)
	large := dispatched(4096)
	assert.Empty(t, small, "text over the first host's limit is dropped")
	assert.Len(t, large, 1, "the second host keeps its own limit")
	assert.Empty(t, dispatched(16), "hosts do not leak their limit to each other")
}
