package analyzers

import (
	"context"

	"github.com/hitherto/hitherto/internal/module"
	"github.com/hitherto/hitherto/internal/signal"
)

// Fundamental emits a mispricing percentage per configured asset: positive
// means undervalued, negative overvalued.
type Fundamental struct {
	mispricing map[string]float64
	confidence float64
}

func NewFundamental() *Fundamental { return &Fundamental{} }

func (f *Fundamental) Name() string { return "fundamental" }

func (f *Fundamental) Initialize(cfg map[string]any) error {
	m, err := assetFloats(cfg, "mispricing_percent")
	if err != nil {
		return err
	}
	f.mispricing = m
	f.confidence = 0.7
	if c, ok := toFloat(cfg["confidence"]); ok {
		f.confidence = c
	}
	return nil
}

func (f *Fundamental) Process(_ context.Context, _ module.Context) ([]signal.Signal, error) {
	var out []signal.Signal
	for asset, pct := range f.mispricing {
		out = append(out, stamp(f.Name(), signal.TypeFundamental, signal.Payload{
			Asset:         asset,
			MispricingPct: pct,
		}, f.confidence))
	}
	return out, nil
}

func (f *Fundamental) Cleanup() error { return nil }

func (f *Fundamental) SubscribedMessageTypes() []signal.MessageType {
	return []signal.MessageType{signal.TypeRegime}
}
