package observability

import (
	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plotlink"

// Metrics holds the plot collectors. Register them once per registry.
type Metrics struct {
	Dispatched  *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	Redraws     *prometheus.CounterVec
	Binds       prometheus.Counter
	Invalidates prometheus.Counter
	Probes      *prometheus.CounterVec
	Phases      *prometheus.CounterVec
	StoreOps    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Events delivered to a surface.",
		}, []string{"plot_id"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events discarded before reaching a surface.",
		}, []string{"reason"}),
		Redraws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redraws_total",
			Help:      "Refresh requests by outcome.",
		}, []string{"result"}),
		Binds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_binds_total",
			Help:      "Client bind operations, including metadata updates.",
		}),
		Invalidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_invalidations_total",
			Help:      "Client bindings cleared.",
		}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_probes_total",
			Help:      "Client liveness probes by outcome.",
		}, []string{"result"}),
		Phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Endpoint phase transitions by target phase.",
		}, []string{"phase"}),
		StoreOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Snapshot store latency by operation and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "result"}),
	}
	reg.MustRegister(m.Dispatched, m.Dropped, m.Redraws, m.Binds, m.Invalidates, m.Probes, m.Phases, m.StoreOps)
	return m
}

// RegisterOpenPlots exports a gauge read from count at scrape time.
func RegisterOpenPlots(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "plots_open",
		Help:      "Plot endpoints currently open.",
	}, func() float64 { return float64(count()) }))
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnBind: func(*domain.ClientEvent) {
			m.Binds.Inc()
		},
		OnInvalidate: func(*domain.ClientEvent) {
			m.Invalidates.Inc()
		},
		OnProbe: func(e *domain.ClientEvent) {
			result := "unresponsive"
			if e.Responding {
				result = "responding"
			}
			m.Probes.WithLabelValues(result).Inc()
		},
		OnDispatch: func(e *domain.DispatchEvent) {
			m.Dispatched.WithLabelValues(e.PlotID).Inc()
		},
		OnDrop: func(e *domain.DispatchEvent) {
			m.Dropped.WithLabelValues(e.Reason).Inc()
		},
		OnRedraw: func(e *domain.SurfaceEvent) {
			result := "drawn"
			if e.Skipped {
				result = "skipped"
			}
			m.Redraws.WithLabelValues(result).Inc()
		},
		OnPhase: func(e *domain.SurfaceEvent) {
			m.Phases.WithLabelValues(string(e.Phase)).Inc()
		},
	}
}
