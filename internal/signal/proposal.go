package signal

import (
	"fmt"
	"strings"
	"time"
)

// Action is the direction of a trade action.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// ProposalStatus tracks the lifecycle of a TradeProposal. REJECTED and
// EXECUTED are terminal.
type ProposalStatus string

const (
	StatusDraft         ProposalStatus = "DRAFT"
	StatusPendingReview ProposalStatus = "PENDING_REVIEW"
	StatusAutoApproved  ProposalStatus = "AUTO_APPROVED"
	StatusApproved      ProposalStatus = "APPROVED"
	StatusRejected      ProposalStatus = "REJECTED"
	StatusDowngraded    ProposalStatus = "DOWNGRADED"
	StatusExecuted      ProposalStatus = "EXECUTED"
)

// TradeAction is a single proposed trade. Size is always non-negative; the
// direction lives in Action.
type TradeAction struct {
	Asset  string  `json:"asset"`
	Action Action  `json:"action"`
	Size   float64 `json:"size"`
}

func (a TradeAction) String() string {
	return fmt.Sprintf("%s %.2f %s", a.Action, a.Size, a.Asset)
}

// Validate rejects malformed actions at the boundary.
func (a TradeAction) Validate() error {
	if a.Asset == "" {
		return fmt.Errorf("action has empty asset")
	}
	switch a.Action {
	case Buy, Sell, Hold:
	default:
		return fmt.Errorf("unknown action %q for %s", a.Action, a.Asset)
	}
	if a.Size < 0 {
		return fmt.Errorf("negative size %.2f for %s", a.Size, a.Asset)
	}
	return nil
}

// TradeProposal is the per-cycle batch of trade actions. It is created by the
// proposal builder, adjusted in place by the risk engine, and marked EXECUTED
// by the execution engine.
type TradeProposal struct {
	ID              string         `json:"id"`
	Regime          string         `json:"regime"`
	Actions         []TradeAction  `json:"actions"`
	AdjustedActions []TradeAction  `json:"adjusted_actions,omitempty"`
	Rationale       []string       `json:"rationale"`
	RiskFlags       []string       `json:"risk_flags,omitempty"`
	RequiresHuman   bool           `json:"requires_human"`
	Status          ProposalStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}

// EffectiveActions returns the adjusted actions when the risk engine produced
// them, otherwise the original actions.
func (p *TradeProposal) EffectiveActions() []TradeAction {
	if p.AdjustedActions != nil {
		return p.AdjustedActions
	}
	return p.Actions
}

// Summary is the fallback human-readable description used when no reasoner
// summary is available.
func (p *TradeProposal) Summary() string {
	var parts []string
	for _, a := range p.EffectiveActions() {
		if a.Action != Hold {
			parts = append(parts, a.String())
		}
	}
	if len(parts) == 0 {
		return "Hold all positions"
	}
	return "Proposed: " + strings.Join(parts, "; ")
}

// Verdict is the outcome of a risk evaluation.
type Verdict string

const (
	VerdictApproved   Verdict = "APPROVED"
	VerdictDowngraded Verdict = "DOWNGRADED"
	VerdictRejected   Verdict = "REJECTED"
)

// RiskVerdict is produced once per proposal by the risk engine and never
// mutated afterward.
type RiskVerdict struct {
	Verdict         Verdict            `json:"verdict"`
	OriginalActions []TradeAction      `json:"original_actions"`
	AdjustedActions []TradeAction      `json:"adjusted_actions,omitempty"`
	RiskFlags       []string           `json:"risk_flags"`
	RiskMetrics     map[string]float64 `json:"risk_metrics"`
	Rationale       string             `json:"rationale"`
}

// OverrideCommand is an operator instruction applied to one pipeline stage.
type OverrideCommand string

const (
	CommandHalt    OverrideCommand = "HALT"
	CommandTighten OverrideCommand = "TIGHTEN"
)

// Override is a human command targeting a pipeline component by module name
// ("overseer", "risk", "execution").
type Override struct {
	TargetModule string          `json:"target_module"`
	Command      OverrideCommand `json:"command_type"`
	Reason       string          `json:"reason"`
	IssuedAt     time.Time       `json:"issued_at"`
}
