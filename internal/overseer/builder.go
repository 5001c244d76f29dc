package overseer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hitherto/hitherto/internal/config"
	"github.com/hitherto/hitherto/internal/fusion"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/rs/zerolog"
)

// Builder turns fused conviction scores into trade proposals. The reasoner,
// when set and available, proposes first; its output is validated before use
// and any failure falls back to the deterministic rule path.
type Builder struct {
	cfg      config.Overseer
	playbook *fusion.Playbook
	reasoner Reasoner
	log      zerolog.Logger
}

func NewBuilder(cfg config.Overseer, playbook *fusion.Playbook, reasoner Reasoner, log zerolog.Logger) *Builder {
	return &Builder{
		cfg:      cfg,
		playbook: playbook,
		reasoner: reasoner,
		log:      log.With().Str("component", "overseer").Logger(),
	}
}

// Propose builds this cycle's trade proposal from the routed signals under
// the given regime. regimeAwaitingHuman forces the proposal into review.
func (b *Builder) Propose(ctx context.Context, regime string, signals map[string]signal.Signal, regimeAwaitingHuman bool) *signal.TradeProposal {
	profile := b.playbook.Profile(regime)

	actions, rationale := b.reasonerActions(ctx, regime, signals, profile.Weights)
	if actions == nil {
		actions, rationale = b.ruleActions(signals, profile)
	}

	p := &signal.TradeProposal{
		ID:        uuid.NewString(),
		Regime:    regime,
		Actions:   actions,
		Rationale: rationale,
		Status:    signal.StatusDraft,
		CreatedAt: time.Now().UTC(),
	}

	requiresHuman := b.cfg.RequireReview || regimeAwaitingHuman
	for _, a := range actions {
		if a.Size > profile.ReviewThreshold {
			requiresHuman = true
			p.Rationale = append(p.Rationale, fmt.Sprintf("%s size %.2f exceeds review threshold %.2f", a.Asset, a.Size, profile.ReviewThreshold))
		}
	}
	p.RequiresHuman = requiresHuman
	if requiresHuman {
		p.Status = signal.StatusPendingReview
	} else {
		p.Status = signal.StatusAutoApproved
	}
	b.log.Info().
		Str("proposal_id", p.ID).
		Str("regime", regime).
		Int("actions", len(p.Actions)).
		Bool("requires_human", p.RequiresHuman).
		Msg("proposal built")
	return p
}

func (b *Builder) reasonerActions(ctx context.Context, regime string, signals map[string]signal.Signal, weights map[string]float64) ([]signal.TradeAction, []string) {
	if b.reasoner == nil || !b.reasoner.Available() {
		return nil, nil
	}
	retries := b.cfg.ReasonerRetries
	if retries < 0 {
		retries = 0
	}
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(b.cfg.BackoffBaseMs) * time.Millisecond << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, nil
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.ReasonerTimeoutMs)*time.Millisecond)
		actions, rationale, err := b.reasoner.Decide(callCtx, regime, signals, weights)
		cancel()
		if err != nil {
			b.log.Warn().Err(err).Int("attempt", attempt+1).Msg("reasoner call failed")
			continue
		}
		if err := validateActions(actions); err != nil {
			b.log.Warn().Err(err).Msg("reasoner output rejected")
			return nil, nil
		}
		return actions, rationale
	}
	b.log.Warn().Msg("reasoner exhausted retries, using rule-based proposal")
	return nil, nil
}

func validateActions(actions []signal.TradeAction) error {
	if len(actions) == 0 {
		return fmt.Errorf("empty action list")
	}
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ruleActions is the deterministic fallback: fuse, rank by conviction, cap
// the action count, and size positions proportionally to conviction.
func (b *Builder) ruleActions(signals map[string]signal.Signal, profile config.PlaybookProfile) ([]signal.TradeAction, []string) {
	scores := fusion.Fuse(signals, profile)

	type scored struct {
		asset string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for asset, score := range scores {
		if math.Abs(score) < b.cfg.MinScoreThreshold {
			continue
		}
		ranked = append(ranked, scored{asset, score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if math.Abs(ranked[i].score) != math.Abs(ranked[j].score) {
			return math.Abs(ranked[i].score) > math.Abs(ranked[j].score)
		}
		return ranked[i].asset < ranked[j].asset
	})
	if len(ranked) > b.cfg.MaxActionsPerCycle {
		ranked = ranked[:b.cfg.MaxActionsPerCycle]
	}

	var actions []signal.TradeAction
	var rationale []string
	for _, r := range ranked {
		act := signal.Buy
		if r.score < 0 {
			act = signal.Sell
		}
		size := b.cfg.BaseSize * math.Min(math.Abs(r.score), 1.0)
		actions = append(actions, signal.TradeAction{Asset: r.asset, Action: act, Size: size})
		rationale = append(rationale, fmt.Sprintf("%s conviction %.3f", r.asset, r.score))
	}
	if len(actions) == 0 {
		actions = []signal.TradeAction{{Action: signal.Hold}}
		rationale = append(rationale, "no asset cleared the conviction threshold")
	}
	return actions, rationale
}

// Summarize asks the reasoner for a narrative cycle summary, falling back to
// the proposal's own summary line.
func (b *Builder) Summarize(ctx context.Context, p *signal.TradeProposal) string {
	if b.reasoner != nil && b.reasoner.Available() {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.ReasonerTimeoutMs)*time.Millisecond)
		defer cancel()
		if s, err := b.reasoner.Summarize(callCtx, p); err == nil && s != "" {
			return s
		}
	}
	return p.Summary()
}

// ApplyOverrides mutates the proposal per operator overrides targeting the
// overseer. HALT drops every action to a single HOLD and forces review.
func ApplyOverrides(p *signal.TradeProposal, overrides []signal.Override, log zerolog.Logger) {
	for _, o := range overrides {
		if o.TargetModule != "overseer" {
			continue
		}
		switch o.Command {
		case signal.CommandHalt:
			p.Actions = []signal.TradeAction{{Action: signal.Hold}}
			p.AdjustedActions = nil
			p.RequiresHuman = true
			p.Status = signal.StatusPendingReview
			p.Rationale = append(p.Rationale, fmt.Sprintf("halted by operator override: %s", o.Reason))
			log.Warn().Str("reason", o.Reason).Msg("proposal halted by override")
		case signal.CommandTighten:
			for i := range p.Actions {
				p.Actions[i].Size /= 2
			}
			p.Rationale = append(p.Rationale, fmt.Sprintf("sizes tightened by operator override: %s", o.Reason))
			log.Warn().Str("reason", o.Reason).Msg("proposal tightened by override")
		}
	}
}
