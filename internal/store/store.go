package store

import (
	"context"
	"time"

	"github.com/hitherto/hitherto/internal/execution"
	"github.com/hitherto/hitherto/internal/regime"
	"github.com/hitherto/hitherto/internal/signal"
)

// CycleRecord is the durable trace of one decision cycle.
type CycleRecord struct {
	CycleID    string                `json:"cycle_id"`
	StartedAt  time.Time             `json:"started_at"`
	Regime     string                `json:"regime"`
	Confidence float64               `json:"confidence"`
	Signals    []signal.Signal       `json:"signals,omitempty"`
	Proposal   *signal.TradeProposal `json:"proposal,omitempty"`
	Verdict    *signal.RiskVerdict   `json:"verdict,omitempty"`
	Reports    []execution.Report    `json:"reports,omitempty"`
	Summary    string                `json:"summary,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
}

// Store persists cycle traces, regime transitions, and operator overrides.
// SaveCycle must land the whole record or none of it.
type Store interface {
	regime.TransitionSink
	SaveCycle(ctx context.Context, rec CycleRecord) error
	RecordOverride(ctx context.Context, o signal.Override) error
	ActiveRegime(ctx context.Context) (regime.Label, float64, error)
	Close() error
}

// ErrNoRegime is returned by ActiveRegime when no transition has been
// recorded yet.
type noRegimeError struct{}

func (noRegimeError) Error() string { return "no persisted regime" }

// ErrNoRegime signals a fresh store with no regime history.
var ErrNoRegime error = noRegimeError{}
