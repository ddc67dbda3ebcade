package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/ports"
)

// Masked replaces a client name matched by a mask pattern.
const Masked = "***"

type maskMiddleware struct {
	next     ports.PlotStore
	patterns []*regexp.Regexp
}

// NewMaskMiddleware masks client names matching any pattern before they are
// persisted. The live endpoint keeps the real name. Patterns that fail to
// compile are reported as an error.
func NewMaskMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, 0, len(patternStrings))
	for _, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	return func(next ports.PlotStore) ports.PlotStore {
		return &maskMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *maskMiddleware) Save(ctx context.Context, plotID string, snap *domain.Snapshot) error {
	cloned := *snap
	for _, p := range m.patterns {
		if p.MatchString(cloned.Client.Name) {
			cloned.Client.Name = Masked
			break
		}
	}
	return m.next.Save(ctx, plotID, &cloned)
}

func (m *maskMiddleware) Load(ctx context.Context, plotID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, plotID)
}

func (m *maskMiddleware) Delete(ctx context.Context, plotID string) error {
	return m.next.Delete(ctx, plotID)
}

func (m *maskMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
