package risk

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/hitherto/hitherto/internal/config"
	"github.com/hitherto/hitherto/internal/history"
	"github.com/hitherto/hitherto/internal/observ"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/rs/zerolog"
)

// hard-limit flags that count toward the automatic kill switch trigger.
const (
	flagKillSwitch    = "kill switch active"
	flagPositionLimit = "position limit"
	flagExposure      = "portfolio exposure"
	flagConcentration = "concentration"
	flagAssetVaR      = "asset VaR"
	flagPortfolioVaR  = "portfolio VaR"
)

func isHardFlag(flag string) bool {
	switch flag {
	case flagExposure, flagConcentration, flagAssetVaR, flagPortfolioVaR:
		return true
	}
	return false
}

// Engine evaluates proposals against the configured risk limits. The kill
// switch fails closed: once active every proposal is rejected until an
// operator explicitly deactivates it.
type Engine struct {
	mu         sync.Mutex
	cfg        config.Risk
	returns    history.Provider
	corr       CorrelationProvider
	killSwitch bool
	killReason string
	log        zerolog.Logger
}

func NewEngine(cfg config.Risk, returns history.Provider, corr CorrelationProvider, log zerolog.Logger) *Engine {
	if corr == nil {
		corr = ConstantCorrelation{Rho: cfg.AvgCorrelation}
	}
	return &Engine{
		cfg:     cfg,
		returns: returns,
		corr:    corr,
		log:     log.With().Str("component", "risk").Logger(),
	}
}

// ActivateKillSwitch halts all approvals. Reason is recorded for the audit
// trail and the status endpoint.
func (e *Engine) ActivateKillSwitch(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitch = true
	e.killReason = reason
	observ.KillSwitchActive.Set(1)
	e.log.Warn().Str("reason", reason).Msg("kill switch activated")
}

// DeactivateKillSwitch re-enables approvals. Only an explicit operator call
// does this; the switch never resets on its own.
func (e *Engine) DeactivateKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSwitch = false
	e.killReason = ""
	observ.KillSwitchActive.Set(0)
	e.log.Info().Msg("kill switch deactivated")
}

// KillSwitch reports the switch state and the activation reason.
func (e *Engine) KillSwitch() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killSwitch, e.killReason
}

// Evaluate scores a proposal against every limit and mutates its status to
// match the verdict. Position-limit breaches downsize; exposure,
// concentration, and VaR breaches on the downsized set reject outright.
func (e *Engine) Evaluate(ctx context.Context, p *signal.TradeProposal) signal.RiskVerdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	verdict := signal.RiskVerdict{
		OriginalActions: append([]signal.TradeAction(nil), p.Actions...),
		RiskMetrics:     map[string]float64{},
	}

	if e.killSwitch {
		verdict.Verdict = signal.VerdictRejected
		verdict.RiskFlags = []string{flagKillSwitch}
		verdict.Rationale = fmt.Sprintf("kill switch active: %s", e.killReason)
		p.Status = signal.StatusRejected
		p.RiskFlags = verdict.RiskFlags
		p.AdjustedActions = nil
		observ.VerdictsTotal.WithLabelValues(string(verdict.Verdict)).Inc()
		e.log.Warn().Str("proposal_id", p.ID).Msg("proposal rejected by kill switch")
		return verdict
	}

	adjusted, flags := e.clampPositions(p.Actions)
	flags = append(flags, e.checkExposure(adjusted, verdict.RiskMetrics)...)
	flags = append(flags, e.checkConcentration(adjusted, verdict.RiskMetrics)...)
	flags = append(flags, e.checkVaR(ctx, adjusted, verdict.RiskMetrics)...)

	verdict.RiskFlags = flags
	hard := false
	for _, f := range flags {
		if isHardFlag(f) {
			hard = true
			break
		}
	}

	switch {
	case len(flags) == 0:
		verdict.Verdict = signal.VerdictApproved
		verdict.Rationale = "all limits satisfied"
	case !hard:
		verdict.Verdict = signal.VerdictDowngraded
		verdict.AdjustedActions = adjusted
		verdict.Rationale = "positions downsized to fit limits"
		p.AdjustedActions = adjusted
		p.Status = signal.StatusDowngraded
	default:
		verdict.Verdict = signal.VerdictRejected
		verdict.Rationale = "hard limits breached"
		p.Status = signal.StatusRejected
		p.AdjustedActions = nil
	}
	p.RiskFlags = flags

	if e.cfg.KillSwitchOnBreach && len(flags) >= 2 && hard {
		e.killSwitch = true
		e.killReason = fmt.Sprintf("automatic: %d limit breaches on proposal %s", len(flags), p.ID)
		observ.KillSwitchActive.Set(1)
		e.log.Warn().Str("proposal_id", p.ID).Strs("flags", flags).Msg("kill switch tripped by limit breaches")
	}

	observ.VerdictsTotal.WithLabelValues(string(verdict.Verdict)).Inc()
	e.log.Info().
		Str("proposal_id", p.ID).
		Str("verdict", string(verdict.Verdict)).
		Strs("flags", flags).
		Msg("proposal evaluated")
	return verdict
}

// clampPositions enforces the per-position size cap. The returned slice is a
// copy; the flag list is non-empty only when something was downsized.
func (e *Engine) clampPositions(actions []signal.TradeAction) ([]signal.TradeAction, []string) {
	out := make([]signal.TradeAction, len(actions))
	copy(out, actions)
	var flags []string
	for i, a := range out {
		if a.Action == signal.Hold {
			continue
		}
		if a.Size > e.cfg.MaxPositionSize {
			out[i].Size = e.cfg.MaxPositionSize
			flags = append(flags, fmt.Sprintf("%s: %s %.2f exceeds max position size %.2f",
				flagPositionLimit, a.Asset, a.Size, e.cfg.MaxPositionSize))
		}
	}
	return out, flags
}

func (e *Engine) checkExposure(actions []signal.TradeAction, metrics map[string]float64) []string {
	var total float64
	for _, a := range actions {
		if a.Action == signal.Hold {
			continue
		}
		total += math.Abs(a.Size)
	}
	metrics["portfolio_exposure"] = total
	if total > e.cfg.MaxPortfolioExposure {
		return []string{fmt.Sprintf("%s: %.2f exceeds limit %.2f", flagExposure, total, e.cfg.MaxPortfolioExposure)}
	}
	return nil
}

func (e *Engine) checkConcentration(actions []signal.TradeAction, metrics map[string]float64) []string {
	var total float64
	for _, a := range actions {
		if a.Action == signal.Hold {
			continue
		}
		total += math.Abs(a.Size)
	}
	if total == 0 {
		return nil
	}
	var flags []string
	var maxShare float64
	for _, a := range actions {
		if a.Action == signal.Hold {
			continue
		}
		share := math.Abs(a.Size) / total
		if share > maxShare {
			maxShare = share
		}
		if share > e.cfg.PositionConcentrationLimit {
			flags = append(flags, fmt.Sprintf("%s: %s share %.2f exceeds limit %.2f",
				flagConcentration, a.Asset, share, e.cfg.PositionConcentrationLimit))
		}
	}
	metrics["max_concentration"] = maxShare
	return flags
}

func (e *Engine) checkVaR(ctx context.Context, actions []signal.TradeAction, metrics map[string]float64) []string {
	var flags []string
	sizes := map[string]float64{}
	assetVaR := map[string]float64{}
	for _, a := range actions {
		if a.Action == signal.Hold || a.Asset == "" {
			continue
		}
		sizes[a.Asset] = a.Size

		returns, err := e.returns.Returns(ctx, a.Asset)
		if err != nil {
			e.log.Warn().Err(err).Str("asset", a.Asset).Msg("return history unavailable, VaR treated as zero")
			assetVaR[a.Asset] = 0
			continue
		}
		v := HistoricalVaR(returns, e.cfg.VaRConfidence)
		assetVaR[a.Asset] = v
		metrics[fmt.Sprintf("var_%s", a.Asset)] = v
		if v > e.cfg.MaxVaRPerAsset {
			flags = append(flags, fmt.Sprintf("%s: %s VaR %.4f exceeds limit %.4f",
				flagAssetVaR, a.Asset, v, e.cfg.MaxVaRPerAsset))
		}
	}
	if len(sizes) == 0 {
		return flags
	}
	pv := PortfolioVaR(sizes, assetVaR, e.corr)
	metrics["portfolio_var"] = pv
	if pv > e.cfg.MaxPortfolioVaR {
		flags = append(flags, fmt.Sprintf("%s: %.4f exceeds limit %.4f", flagPortfolioVaR, pv, e.cfg.MaxPortfolioVaR))
	}
	return flags
}
