package analyzers

import (
	"context"
	"fmt"

	"github.com/hitherto/hitherto/internal/module"
	"github.com/hitherto/hitherto/internal/signal"
)

// Technical emits a bullish/bearish/neutral call per configured asset. The
// raw config carries a trend value per asset; sign maps to direction and
// magnitude to confidence.
type Technical struct {
	trends map[string]float64
}

func NewTechnical() *Technical { return &Technical{} }

func (t *Technical) Name() string { return "technical" }

func (t *Technical) Initialize(cfg map[string]any) error {
	trends, err := assetFloats(cfg, "trends")
	if err != nil {
		return err
	}
	for asset, v := range trends {
		if v < -1 || v > 1 {
			return fmt.Errorf("trend for %s out of range: %v", asset, v)
		}
	}
	t.trends = trends
	return nil
}

func (t *Technical) Process(_ context.Context, in module.Context) ([]signal.Signal, error) {
	// Crisis regimes dampen conviction on the long side.
	damp := 1.0
	if r, ok := in["overseer_RegimeSignal"]; ok && r.Payload.RegimeLabel == "CRISIS" {
		damp = 0.5
	}

	var out []signal.Signal
	for asset, trend := range t.trends {
		strength := "neutral"
		switch {
		case trend > 0.1:
			strength = "bullish"
		case trend < -0.1:
			strength = "bearish"
		}
		conf := abs(trend) * damp
		out = append(out, stamp(t.Name(), signal.TypeTechnical, signal.Payload{
			Asset:    asset,
			Strength: strength,
		}, conf))
	}
	return out, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (t *Technical) Cleanup() error { return nil }

func (t *Technical) SubscribedMessageTypes() []signal.MessageType {
	return []signal.MessageType{signal.TypeRegime}
}
