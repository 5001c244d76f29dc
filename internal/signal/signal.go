package signal

import (
	"time"
)

// MessageType identifies the kind of payload a signal carries. Routing rules
// and the fuser's score extractors both key off this.
type MessageType string

const (
	TypeSentiment   MessageType = "SentimentSignal"
	TypeTechnical   MessageType = "TechnicalSignal"
	TypeFundamental MessageType = "FundamentalSignal"
	TypeAltData     MessageType = "AltDataSignal"
	TypeSeasonality MessageType = "SeasonalitySignal"
	TypeIntermarket MessageType = "IntermarketSignal"
	TypeRegime      MessageType = "RegimeSignal"
	TypeProposal    MessageType = "TradeProposal"
	TypeRisk        MessageType = "RiskSignal"
	TypeExecution   MessageType = "ExecutionSignal"
)

// Payload holds the per-type fields of a signal. Only the fields relevant to
// the signal's MessageType are populated; the rest stay zero.
type Payload struct {
	Asset         string  `json:"asset,omitempty"`
	Metric        string  `json:"metric,omitempty"`
	Value         float64 `json:"value,omitempty"`
	Score         float64 `json:"sentiment_score,omitempty"`
	Strength      string  `json:"signal_strength,omitempty"` // bullish | bearish | neutral
	MispricingPct float64 `json:"mispricing_percent,omitempty"`
	Bias          float64 `json:"bias,omitempty"`
	RegimeLabel   string  `json:"regime_label,omitempty"`
}

// Signal is the immutable value object analyzer modules emit each cycle.
type Signal struct {
	Origin     string      `json:"origin_module"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       MessageType `json:"message_type"`
	Payload    Payload     `json:"payload"`
	Confidence *float64    `json:"confidence,omitempty"` // nil means unknown
}

// ConfidenceOr returns the signal's confidence, or def when unset.
func (s Signal) ConfidenceOr(def float64) float64 {
	if s.Confidence == nil {
		return def
	}
	return *s.Confidence
}

// Score extracts the numeric contribution of a signal for fusion. Signals
// without a recognized type contribute zero.
func (s Signal) Score() float64 {
	switch s.Type {
	case TypeSentiment:
		return s.Payload.Score
	case TypeTechnical:
		switch s.Payload.Strength {
		case "bullish":
			return 1.0
		case "bearish":
			return -1.0
		default:
			return 0.0
		}
	case TypeFundamental:
		return s.Payload.MispricingPct / 100.0
	case TypeAltData, TypeIntermarket:
		return s.Payload.Value
	case TypeSeasonality:
		return s.Payload.Bias
	default:
		return 0.0
	}
}

// Conf is a convenience for building *float64 confidence literals.
func Conf(v float64) *float64 { return &v }
