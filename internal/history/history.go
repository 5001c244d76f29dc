package history

import (
	"context"
	"fmt"
)

// Provider supplies the historical return series the risk engine feeds into
// VaR. Implementations return the series oldest-first; an unknown asset is an
// error, not an empty slice.
type Provider interface {
	Returns(ctx context.Context, asset string) ([]float64, error)
}

// Static serves returns from an in-memory map. It backs tests and the
// standalone simulation mode.
type Static struct {
	series map[string][]float64
}

func NewStatic(series map[string][]float64) *Static {
	if series == nil {
		series = map[string][]float64{}
	}
	return &Static{series: series}
}

func (s *Static) Returns(_ context.Context, asset string) ([]float64, error) {
	r, ok := s.series[asset]
	if !ok {
		return nil, fmt.Errorf("no return history for %s", asset)
	}
	out := make([]float64, len(r))
	copy(out, r)
	return out, nil
}

func (s *Static) Set(asset string, returns []float64) {
	s.series[asset] = returns
}
