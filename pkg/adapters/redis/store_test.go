package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/plotlink/pkg/adapters/redis"
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)

	store := redis.NewFromClient(client)
	ports.RunPlotStoreContract(t, store)
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	plotID := "plot-ttl"

	err := store.Save(ctx, plotID, &domain.Snapshot{PlotID: plotID, Phase: domain.PhaseReady})
	require.NoError(t, err)

	plots, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, plots, plotID)

	// Key expiry is driven by miniredis time.
	mr.FastForward(2 * time.Second)
	_, err = store.Load(ctx, plotID)
	assert.ErrorIs(t, err, domain.ErrPlotNotFound)

	// Index pruning compares against wall-clock time.
	time.Sleep(1200 * time.Millisecond)
	plots, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, plots)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)

	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()
	plotID := "my-plot"

	require.NoError(t, store.Save(ctx, plotID, &domain.Snapshot{PlotID: plotID}))

	assert.True(t, mr.Exists("custom:app:my-plot"), "Expected key with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index"), "Expected index with custom prefix to exist")

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, list, plotID)
}

func TestRedisStore_DefaultPrefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix(""))

	require.NoError(t, store.Save(context.Background(), "p", &domain.Snapshot{PlotID: "p"}))
	assert.True(t, mr.Exists(redis.DefaultPrefix+"p"))
	assert.Same(t, client, store.Client())
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client)

	require.NoError(t, mr.Set(redis.DefaultPrefix+"broken", "{not json"))
	_, err := store.Load(context.Background(), "broken")
	assert.ErrorContains(t, err, "failed to unmarshal snapshot")
}
