package regime

import (
	"context"
	"math"
	"time"

	"github.com/hitherto/hitherto/internal/signal"
)

// Label names a market regime.
type Label string

const (
	Bull     Label = "BULL"
	Bear     Label = "BEAR"
	Sideways Label = "SIDEWAYS"
	HighVol  Label = "HIGH_VOL"
	LowVol   Label = "LOW_VOL"
	Crisis   Label = "CRISIS"
	Recovery Label = "RECOVERY"
	Other    Label = "OTHER"
)

func (l Label) Valid() bool {
	switch l {
	case Bull, Bear, Sideways, HighVol, LowVol, Crisis, Recovery, Other:
		return true
	}
	return false
}

// State is the classifier's full condition: the committed regime plus any
// pending candidate working its way through the dwell window.
type State struct {
	Label             Label     `json:"label"`
	Confidence        float64   `json:"confidence"`
	PendingCandidate  Label     `json:"pending_candidate,omitempty"`
	ConfirmationCount int       `json:"confirmation_count"`
	AwaitingHuman     bool      `json:"awaiting_human_confirmation"`
	EffectiveFrom     time.Time `json:"effective_from"`
}

// Transition records a committed regime change for the audit trail.
type Transition struct {
	From       Label     `json:"from"`
	To         Label     `json:"to"`
	Confidence float64   `json:"confidence"`
	Manual     bool      `json:"manual"`
	At         time.Time `json:"at"`
}

// Detector produces a candidate regime and a confidence from the cycle's
// signals. Implementations must be pure with respect to their inputs.
type Detector interface {
	Detect(ctx context.Context, signals map[string]signal.Signal) (Label, float64, error)
}

// StatisticalDetector classifies from the mean fused score of the cycle's
// analyzer signals. It is the default detector when no model-backed one is
// configured.
type StatisticalDetector struct {
	BullThreshold float64
	BearThreshold float64
}

func NewStatisticalDetector() *StatisticalDetector {
	return &StatisticalDetector{BullThreshold: 0.15, BearThreshold: -0.15}
}

func (d *StatisticalDetector) Detect(_ context.Context, signals map[string]signal.Signal) (Label, float64, error) {
	var sum float64
	var n int
	for _, s := range signals {
		switch s.Type {
		case signal.TypeRegime, signal.TypeProposal, signal.TypeRisk, signal.TypeExecution:
			continue
		}
		sum += s.Score() * s.ConfidenceOr(1.0)
		n++
	}
	if n == 0 {
		return Sideways, 0.0, nil
	}
	mean := sum / float64(n)
	conf := math.Min(math.Abs(mean)*2, 1.0)
	switch {
	case mean >= d.BullThreshold:
		return Bull, conf, nil
	case mean <= d.BearThreshold:
		return Bear, conf, nil
	default:
		return Sideways, 1.0 - conf, nil
	}
}
