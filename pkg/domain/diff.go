package domain

// SnapshotDiff represents the changes between two snapshots of the same plot.
// It is serialized to JSON for partial updates on watchers.
type SnapshotDiff struct {
	// PlotID is always present to identify the target.
	PlotID string `json:"plot_id"`

	Phase        *Phase      `json:"phase,omitempty"`
	SurfaceReady *bool       `json:"surface_ready,omitempty"`
	Accepting    *bool       `json:"accepting,omitempty"`
	ClientBound  *bool       `json:"client_bound,omitempty"`
	Client       *ClientInfo `json:"client,omitempty"`
}

// Diff calculates the difference between oldSnap and newSnap.
// If oldSnap is nil, it returns a diff representing the entire newSnap (initial load).
// It returns nil when nothing observable changed.
func Diff(oldSnap, newSnap *Snapshot) *SnapshotDiff {
	if newSnap == nil {
		return nil
	}

	diff := &SnapshotDiff{PlotID: newSnap.PlotID}

	if oldSnap == nil || oldSnap.Phase != newSnap.Phase {
		diff.Phase = &newSnap.Phase
	}
	if oldSnap == nil || oldSnap.SurfaceReady != newSnap.SurfaceReady {
		diff.SurfaceReady = &newSnap.SurfaceReady
	}
	if oldSnap == nil || oldSnap.Accepting != newSnap.Accepting {
		diff.Accepting = &newSnap.Accepting
	}
	if oldSnap == nil || oldSnap.ClientBound != newSnap.ClientBound {
		diff.ClientBound = &newSnap.ClientBound
	}
	if oldSnap == nil || oldSnap.Client != newSnap.Client {
		diff.Client = &newSnap.Client
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SnapshotDiff) IsEmpty() bool {
	return d.Phase == nil &&
		d.SurfaceReady == nil &&
		d.Accepting == nil &&
		d.ClientBound == nil &&
		d.Client == nil
}
