package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunPlotStoreContract runs a suite of tests to verify that a PlotStore implementation
// adheres to the defined interface contract.
func RunPlotStoreContract(t *testing.T, store PlotStore) {
	ctx := context.Background()
	plotID := "contract-test-plot-" + time.Now().Format("20060102150405")

	newSnap := func(id string) *domain.Snapshot {
		return &domain.Snapshot{
			PlotID:       id,
			Phase:        domain.PhaseReady,
			SurfaceReady: true,
			Accepting:    true,
			ClientBound:  true,
			Client:       domain.ClientInfo{PID: 4242, Name: "gnuplot"},
			UpdatedAt:    time.Now().UTC().Truncate(time.Second),
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		snap := newSnap(plotID)

		err := store.Save(ctx, plotID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, plotID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, snap.PlotID, loaded.PlotID)
		assert.Equal(t, snap.Phase, loaded.Phase)
		assert.Equal(t, snap.Accepting, loaded.Accepting)
		assert.Equal(t, snap.Client, loaded.Client)
		assert.True(t, snap.UpdatedAt.Equal(loaded.UpdatedAt), "UpdatedAt should round-trip")
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		snap := newSnap(plotID)
		snap.Accepting = false
		snap.ClientBound = false
		snap.Client = domain.ClientInfo{}
		require.NoError(t, store.Save(ctx, plotID, snap))

		loaded, err := store.Load(ctx, plotID)
		require.NoError(t, err)
		assert.False(t, loaded.Accepting)
		assert.False(t, loaded.ClientBound)
		assert.Zero(t, loaded.Client.PID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+plotID)
		assert.ErrorIs(t, err, domain.ErrPlotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, plotID, newSnap(plotID))
		require.NoError(t, err)

		err = store.Delete(ctx, plotID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, plotID)
		assert.ErrorIs(t, err, domain.ErrPlotNotFound, "Load after Delete should return ErrPlotNotFound")

		assert.NoError(t, store.Delete(ctx, plotID), "Delete of a missing plot is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := plotID + "-1"
		id2 := plotID + "-2"
		_ = store.Save(ctx, id1, newSnap(id1))
		_ = store.Save(ctx, id2, newSnap(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		plots, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, plots, id1)
		assert.Contains(t, plots, id2)
	})
}
