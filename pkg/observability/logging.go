package observability

import (
	"log/slog"

	"github.com/aretw0/plotlink/pkg/domain"
)

// LoggingHooks logs client and phase events at info and event traffic at debug.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnBind: func(e *domain.ClientEvent) {
			logger.Info("client_bind", "plot_id", e.PlotID, "pid", e.Client.PID, "name", e.Client.Name)
		},
		OnInvalidate: func(e *domain.ClientEvent) {
			logger.Info("client_invalidate", "plot_id", e.PlotID, "pid", e.Client.PID)
		},
		OnProbe: func(e *domain.ClientEvent) {
			logger.Debug("client_probe", "plot_id", e.PlotID, "pid", e.Client.PID, "responding", e.Responding)
		},
		OnDispatch: func(e *domain.DispatchEvent) {
			logger.Debug("event_dispatch", "plot_id", e.PlotID, "kind", e.Kind)
		},
		OnDrop: func(e *domain.DispatchEvent) {
			logger.Debug("event_drop", "plot_id", e.PlotID, "reason", e.Reason)
		},
		OnPhase: func(e *domain.SurfaceEvent) {
			logger.Info("phase", "plot_id", e.PlotID, "phase", e.Phase)
		},
	}
}
