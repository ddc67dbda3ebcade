package observability

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/persistence/middleware"
	"github.com/aretw0/plotlink/pkg/ports"
)

type instrumentedStore struct {
	next ports.PlotStore
	m    *Metrics
}

// InstrumentStore records the latency of every store call in StoreOps.
func (m *Metrics) InstrumentStore() middleware.Middleware {
	return func(next ports.PlotStore) ports.PlotStore {
		return &instrumentedStore{next: next, m: m}
	}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrPlotNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	s.m.StoreOps.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (s *instrumentedStore) Save(ctx context.Context, plotID string, snap *domain.Snapshot) error {
	start := time.Now()
	err := s.next.Save(ctx, plotID, snap)
	s.observe("save", start, err)
	return err
}

func (s *instrumentedStore) Load(ctx context.Context, plotID string) (*domain.Snapshot, error) {
	start := time.Now()
	snap, err := s.next.Load(ctx, plotID)
	s.observe("load", start, err)
	return snap, err
}

func (s *instrumentedStore) Delete(ctx context.Context, plotID string) error {
	start := time.Now()
	err := s.next.Delete(ctx, plotID)
	s.observe("delete", start, err)
	return err
}

func (s *instrumentedStore) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := s.next.List(ctx)
	s.observe("list", start, err)
	return ids, err
}
