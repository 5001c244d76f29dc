package overseer

import (
	"context"

	"github.com/hitherto/hitherto/internal/signal"
)

// Reasoner is an optional model-backed decision maker. When one is configured
// and available, Propose consults it first; the rule-based path is the
// fallback on unavailability, error, or invalid output.
type Reasoner interface {
	Available() bool
	Decide(ctx context.Context, regime string, signals map[string]signal.Signal, weights map[string]float64) ([]signal.TradeAction, []string, error)
	Summarize(ctx context.Context, p *signal.TradeProposal) (string, error)
}
