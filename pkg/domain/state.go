package domain

import "time"

// Phase is the lifecycle position of a plot endpoint.
type Phase string

const (
	PhaseCreated Phase = "created" // Surface setup has not completed
	PhaseReady   Phase = "ready"   // Surface ready; accept gate may toggle
	PhaseClosed  Phase = "closed"  // Terminal
)

// ClientInfo is the descriptive metadata of a bound drawing client.
// It is carried for diagnostics and display only.
type ClientInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// Snapshot is the serialisable view of one plot endpoint.
type Snapshot struct {
	PlotID       string     `json:"plot_id"`
	Phase        Phase      `json:"phase"`
	SurfaceReady bool       `json:"surface_ready"`
	Accepting    bool       `json:"accepting"`
	ClientBound  bool       `json:"client_bound"`
	Client       ClientInfo `json:"client"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
