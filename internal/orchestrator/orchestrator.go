package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitherto/hitherto/internal/bus"
	"github.com/hitherto/hitherto/internal/execution"
	"github.com/hitherto/hitherto/internal/module"
	"github.com/hitherto/hitherto/internal/observ"
	"github.com/hitherto/hitherto/internal/overseer"
	"github.com/hitherto/hitherto/internal/regime"
	"github.com/hitherto/hitherto/internal/risk"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/hitherto/hitherto/internal/store"
	"github.com/rs/zerolog"
)

// CycleResult is everything one decision cycle produced.
type CycleResult struct {
	CycleID       string                `json:"cycle_id"`
	StartedAt     time.Time             `json:"started_at"`
	Regime        regime.State          `json:"regime"`
	Signals       []signal.Signal       `json:"signals"`
	ModuleResults []module.Result       `json:"module_results"`
	Proposal      *signal.TradeProposal `json:"proposal,omitempty"`
	Verdict       *signal.RiskVerdict   `json:"verdict,omitempty"`
	Reports       []execution.Report    `json:"reports,omitempty"`
	Summary       string                `json:"summary,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
}

// Status is the operator-facing snapshot served by the API.
type Status struct {
	Regime         regime.State         `json:"regime"`
	KillSwitch     bool                 `json:"kill_switch"`
	KillReason     string               `json:"kill_reason,omitempty"`
	CircuitBreaker bool                 `json:"circuit_breaker"`
	BreakerReason  string               `json:"breaker_reason,omitempty"`
	Modules        []module.Health      `json:"modules"`
	Bus            bus.Stats            `json:"bus"`
	Positions      []execution.Position `json:"positions"`
	RealizedPnL    float64              `json:"realized_pnl"`
	CyclesRun      int                  `json:"cycles_run"`
}

// Orchestrator drives the decision pipeline. Cycles are strictly sequential:
// the mutex guarantees no two cycles interleave, whatever triggers them.
type Orchestrator struct {
	mu         sync.Mutex
	registry   *module.Registry
	router     *bus.Router
	detector   regime.Detector
	classifier *regime.Classifier
	builder    *overseer.Builder
	riskEngine *risk.Engine
	execEngine *execution.Engine
	store      store.Store
	log        zerolog.Logger

	pendingMu        sync.Mutex
	pendingOverrides []signal.Override
	halted           bool
	haltReason       string
	cyclesRun        int
}

func New(
	registry *module.Registry,
	router *bus.Router,
	detector regime.Detector,
	classifier *regime.Classifier,
	builder *overseer.Builder,
	riskEngine *risk.Engine,
	execEngine *execution.Engine,
	st store.Store,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:   registry,
		router:     router,
		detector:   detector,
		classifier: classifier,
		builder:    builder,
		riskEngine: riskEngine,
		execEngine: execEngine,
		store:      st,
		log:        log.With().Str("component", "orchestrator").Logger(),
	}
}

// PostOverride queues an operator override for dispatch at the start of the
// next cycle. Risk and execution HALTs take effect immediately as well, so a
// runaway system stops without waiting for a cycle boundary.
func (o *Orchestrator) PostOverride(ctx context.Context, ov signal.Override) error {
	if ov.Command != signal.CommandHalt && ov.Command != signal.CommandTighten {
		return fmt.Errorf("unknown override command %q", ov.Command)
	}
	if ov.IssuedAt.IsZero() {
		ov.IssuedAt = time.Now().UTC()
	}
	switch {
	case ov.TargetModule == "risk" && ov.Command == signal.CommandHalt:
		o.riskEngine.ActivateKillSwitch(ov.Reason)
	case ov.TargetModule == "execution" && ov.Command == signal.CommandHalt:
		o.execEngine.ActivateCircuitBreaker(ov.Reason)
	}
	o.pendingMu.Lock()
	o.pendingOverrides = append(o.pendingOverrides, ov)
	o.pendingMu.Unlock()

	if err := o.store.RecordOverride(ctx, ov); err != nil {
		o.log.Error().Err(err).Msg("override persistence failed")
	}
	o.log.Warn().
		Str("target", ov.TargetModule).
		Str("command", string(ov.Command)).
		Str("reason", ov.Reason).
		Msg("override posted")
	return nil
}

func (o *Orchestrator) drainOverrides() ([]signal.Override, bool, string) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	out := o.pendingOverrides
	o.pendingOverrides = nil
	for _, ov := range out {
		if ov.TargetModule == "orchestrator" && ov.Command == signal.CommandHalt {
			o.halted = true
			o.haltReason = ov.Reason
		}
	}
	return out, o.halted, o.haltReason
}

// RunCycle executes one full decision cycle: analyzers, regime hysteresis,
// proposal, risk gate, execution, persistence. Cancellation is honored at
// stage boundaries; a stage already running completes before the cycle stops.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	res := &CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: start.UTC(),
	}
	log := o.log.With().Str("cycle_id", res.CycleID).Logger()
	log.Info().Msg("cycle started")

	outcome := "ok"
	defer func() {
		o.pendingMu.Lock()
		o.cyclesRun++
		o.pendingMu.Unlock()
		observ.CyclesTotal.WithLabelValues(outcome).Inc()
		observ.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	overrides, halted, haltReason := o.drainOverrides()
	if halted {
		outcome = "halted"
		res.Warnings = append(res.Warnings, fmt.Sprintf("orchestrator halted: %s", haltReason))
		return res, nil
	}

	// Stage 1: broadcast the committed regime, run every analyzer.
	o.router.ClearQueue()
	st := o.classifier.State()
	o.router.Publish(regimeSignal(st))

	moduleResults := o.registry.ExecuteAll(ctx, module.Context{})
	res.ModuleResults = moduleResults
	signals := map[string]signal.Signal{}
	for _, mr := range moduleResults {
		if !mr.Success {
			res.Warnings = append(res.Warnings, fmt.Sprintf("module %s failed: %v", mr.Module, mr.Errors))
			continue
		}
		for _, s := range mr.Signals {
			signals[signalKey(s)] = s
			res.Signals = append(res.Signals, s)
		}
	}
	if err := ctx.Err(); err != nil {
		outcome = "cancelled"
		return res, fmt.Errorf("cycle cancelled after analysis: %w", err)
	}

	// Stage 2: regime hysteresis on this cycle's evidence.
	candidate, confidence, err := o.detector.Detect(ctx, signals)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("regime detection failed: %v", err))
		log.Error().Err(err).Msg("regime detection failed, holding current regime")
	} else {
		if st, err = o.classifier.Observe(ctx, candidate, confidence); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("regime observation rejected: %v", err))
		}
	}
	res.Regime = st

	// Stage 3: proposal.
	proposal := o.builder.Propose(ctx, string(st.Label), signals, st.AwaitingHuman)
	overseer.ApplyOverrides(proposal, overrides, log)
	res.Proposal = proposal
	o.router.Publish(proposalSignal(proposal))
	if err := ctx.Err(); err != nil {
		outcome = "cancelled"
		return res, fmt.Errorf("cycle cancelled after proposal: %w", err)
	}

	// Stage 4: risk gate.
	verdict := o.riskEngine.Evaluate(ctx, proposal)
	res.Verdict = &verdict
	o.router.Publish(verdictSignal(proposal, verdict))
	if err := ctx.Err(); err != nil {
		outcome = "cancelled"
		return res, fmt.Errorf("cycle cancelled after risk evaluation: %w", err)
	}

	// Stage 5: execution, re-checking the halting controls per order.
	guard := func() error {
		if active, reason := o.riskEngine.KillSwitch(); active {
			return fmt.Errorf("kill switch active: %s", reason)
		}
		o.pendingMu.Lock()
		halted, haltReason := o.halted, o.haltReason
		o.pendingMu.Unlock()
		if halted {
			return fmt.Errorf("orchestrator halted: %s", haltReason)
		}
		return nil
	}
	res.Reports = o.execEngine.Execute(ctx, proposal, guard)
	if filled(res.Reports) {
		proposal.Status = signal.StatusExecuted
	}

	// Stage 6: summary and persistence. A store failure degrades the cycle
	// but never loses the in-memory result.
	res.Summary = o.builder.Summarize(ctx, proposal)
	rec := store.CycleRecord{
		CycleID:    res.CycleID,
		StartedAt:  res.StartedAt,
		Regime:     string(st.Label),
		Confidence: st.Confidence,
		Signals:    res.Signals,
		Proposal:   res.Proposal,
		Verdict:    res.Verdict,
		Reports:    res.Reports,
		Summary:    res.Summary,
		Warnings:   res.Warnings,
	}
	if err := o.store.SaveCycle(ctx, rec); err != nil {
		observ.StoreFailures.Inc()
		res.Warnings = append(res.Warnings, fmt.Sprintf("cycle persistence failed: %v", err))
		log.Error().Err(err).Msg("cycle persistence failed")
		outcome = "degraded"
	}

	log.Info().
		Str("regime", string(st.Label)).
		Str("proposal_status", string(proposal.Status)).
		Int("orders", len(res.Reports)).
		Dur("elapsed", time.Since(start)).
		Msg("cycle finished")
	return res, nil
}

func filled(reports []execution.Report) bool {
	for _, r := range reports {
		if r.Status == execution.OrderFilled {
			return true
		}
	}
	return false
}

// signalKey keys the fusion input so same-typed signals for different assets
// never collide.
func signalKey(s signal.Signal) string {
	return fmt.Sprintf("%s_%s_%s", s.Origin, s.Type, s.Payload.Asset)
}

func regimeSignal(st regime.State) signal.Signal {
	return signal.Signal{
		Origin:     "overseer",
		Timestamp:  time.Now().UTC(),
		Type:       signal.TypeRegime,
		Payload:    signal.Payload{RegimeLabel: string(st.Label)},
		Confidence: signal.Conf(st.Confidence),
	}
}

func proposalSignal(p *signal.TradeProposal) signal.Signal {
	return signal.Signal{
		Origin:    "overseer",
		Timestamp: time.Now().UTC(),
		Type:      signal.TypeProposal,
		Payload:   signal.Payload{Metric: p.ID},
	}
}

func verdictSignal(p *signal.TradeProposal, v signal.RiskVerdict) signal.Signal {
	return signal.Signal{
		Origin:    "risk",
		Timestamp: time.Now().UTC(),
		Type:      signal.TypeRisk,
		Payload:   signal.Payload{Metric: p.ID, Value: float64(len(v.RiskFlags))},
	}
}

// ConfirmPendingRegime manually commits a regime change parked on human
// confirmation.
func (o *Orchestrator) ConfirmPendingRegime(ctx context.Context) (regime.State, error) {
	return o.classifier.ConfirmPending(ctx)
}

// Resume clears an orchestrator-level halt.
func (o *Orchestrator) Resume() {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	o.halted = false
	o.haltReason = ""
}

func (o *Orchestrator) ActivateKillSwitch(reason string) { o.riskEngine.ActivateKillSwitch(reason) }
func (o *Orchestrator) DeactivateKillSwitch() { o.riskEngine.DeactivateKillSwitch() }

func (o *Orchestrator) ActivateCircuitBreaker(reason string) {
	o.execEngine.ActivateCircuitBreaker(reason)
}
func (o *Orchestrator) DeactivateCircuitBreaker() { o.execEngine.DeactivateCircuitBreaker() }

// Status assembles the operator snapshot.
func (o *Orchestrator) Status() Status {
	kill, killReason := o.riskEngine.KillSwitch()
	breaker, breakerReason := o.execEngine.CircuitBreaker()
	o.pendingMu.Lock()
	cycles := o.cyclesRun
	o.pendingMu.Unlock()
	return Status{
		Regime:         o.classifier.State(),
		KillSwitch:     kill,
		KillReason:     killReason,
		CircuitBreaker: breaker,
		BreakerReason:  breakerReason,
		Modules:        o.registry.HealthCheckAll(),
		Bus:            o.router.Stats(),
		Positions:      o.execEngine.Book().Snapshot(),
		RealizedPnL:    o.execEngine.Book().RealizedPnL(),
		CyclesRun:      cycles,
	}
}
