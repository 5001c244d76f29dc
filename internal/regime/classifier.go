package regime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitherto/hitherto/internal/observ"
	"github.com/rs/zerolog"
)

// TransitionSink receives committed regime transitions for persistence.
type TransitionSink interface {
	RecordRegimeTransition(ctx context.Context, t Transition) error
}

// Classifier applies dwell-period hysteresis on top of a Detector. A candidate
// regime must be observed for dwellPeriods consecutive cycles before it can
// commit, and a low-confidence candidate that survives the dwell window parks
// as awaiting human confirmation instead of committing.
type Classifier struct {
	mu            sync.Mutex
	sink          TransitionSink
	dwellPeriods  int
	confThreshold float64
	state         State
	pendingConf   float64
	log           zerolog.Logger
}

func NewClassifier(sink TransitionSink, dwellPeriods int, confThreshold float64, initial Label, log zerolog.Logger) *Classifier {
	if dwellPeriods < 1 {
		dwellPeriods = 1
	}
	return &Classifier{
		sink:          sink,
		dwellPeriods:  dwellPeriods,
		confThreshold: confThreshold,
		state: State{
			Label:         initial,
			Confidence:    1.0,
			EffectiveFrom: time.Now().UTC(),
		},
		log: log.With().Str("component", "regime").Logger(),
	}
}

// State returns a copy of the current classifier state.
func (c *Classifier) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Restore seeds the committed regime from persisted state at startup. Pending
// candidates are never restored; hysteresis starts fresh.
func (c *Classifier) Restore(label Label, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !label.Valid() {
		return
	}
	c.state = State{
		Label:         label,
		Confidence:    confidence,
		EffectiveFrom: time.Now().UTC(),
	}
}

// Observe feeds one cycle's candidate through the hysteresis machine and
// returns the resulting state. The committed regime changes only when a new
// candidate has held for the full dwell window with sufficient confidence.
func (c *Classifier) Observe(ctx context.Context, candidate Label, confidence float64) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !candidate.Valid() {
		return c.state, fmt.Errorf("invalid regime label %q", candidate)
	}

	switch {
	case candidate == c.state.Label:
		c.state.PendingCandidate = ""
		c.state.ConfirmationCount = 0
		c.state.AwaitingHuman = false
		c.state.Confidence = confidence
	case candidate == c.state.PendingCandidate:
		c.state.ConfirmationCount++
		c.pendingConf = confidence
	default:
		c.state.PendingCandidate = candidate
		c.state.ConfirmationCount = 1
		c.state.AwaitingHuman = false
		c.pendingConf = confidence
	}

	if c.state.PendingCandidate != "" && c.state.ConfirmationCount >= c.dwellPeriods {
		if confidence >= c.confThreshold {
			c.commitLocked(ctx, c.state.PendingCandidate, confidence, false)
		} else if !c.state.AwaitingHuman {
			c.state.AwaitingHuman = true
			c.log.Warn().
				Str("candidate", string(c.state.PendingCandidate)).
				Float64("confidence", confidence).
				Msg("regime change awaiting human confirmation")
		}
	}
	return c.state, nil
}

// ConfirmPending manually commits the pending candidate, bypassing the
// confidence threshold. It fails when nothing is awaiting confirmation.
func (c *Classifier) ConfirmPending(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.AwaitingHuman || c.state.PendingCandidate == "" {
		return c.state, fmt.Errorf("no pending regime awaiting confirmation")
	}
	c.commitLocked(ctx, c.state.PendingCandidate, c.pendingConf, true)
	return c.state, nil
}

func (c *Classifier) commitLocked(ctx context.Context, to Label, confidence float64, manual bool) {
	from := c.state.Label
	now := time.Now().UTC()
	c.state = State{
		Label:         to,
		Confidence:    confidence,
		EffectiveFrom: now,
	}
	observ.RegimeTransitions.WithLabelValues(string(to)).Inc()
	c.log.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Float64("confidence", confidence).
		Bool("manual", manual).
		Msg("regime transition committed")
	if c.sink != nil {
		t := Transition{From: from, To: to, Confidence: confidence, Manual: manual, At: now}
		if err := c.sink.RecordRegimeTransition(ctx, t); err != nil {
			c.log.Error().Err(err).Msg("regime transition persistence failed")
		}
	}
}
