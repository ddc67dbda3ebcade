package ports

import (
	"context"

	"github.com/aretw0/plotlink/pkg/domain"
)

// PlotStore defines the interface for persisting endpoint snapshots.
// Snapshots describe an endpoint; the live endpoint stays the source of truth.
type PlotStore interface {
	// Save persists the snapshot for a given plot ID.
	Save(ctx context.Context, plotID string, snap *domain.Snapshot) error

	// Load retrieves the snapshot for a given plot ID.
	// Returns domain.ErrPlotNotFound if the plot does not exist.
	Load(ctx context.Context, plotID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a given plot ID.
	Delete(ctx context.Context, plotID string) error

	// List returns the IDs of all stored plots.
	List(ctx context.Context) ([]string, error)
}
