package analyzers

import (
	"context"
	"fmt"

	"github.com/hitherto/hitherto/internal/module"
	"github.com/hitherto/hitherto/internal/signal"
)

// Sentiment emits a sentiment score in [-1, 1] per configured asset.
type Sentiment struct {
	scores     map[string]float64
	confidence float64
}

func NewSentiment() *Sentiment { return &Sentiment{} }

func (s *Sentiment) Name() string { return "sentiment" }

func (s *Sentiment) Initialize(cfg map[string]any) error {
	scores, err := assetFloats(cfg, "scores")
	if err != nil {
		return err
	}
	for asset, v := range scores {
		if v < -1 || v > 1 {
			return fmt.Errorf("sentiment score for %s out of range: %v", asset, v)
		}
	}
	s.scores = scores
	s.confidence = 0.8
	if c, ok := toFloat(cfg["confidence"]); ok {
		s.confidence = c
	}
	return nil
}

func (s *Sentiment) Process(_ context.Context, _ module.Context) ([]signal.Signal, error) {
	var out []signal.Signal
	for asset, score := range s.scores {
		out = append(out, stamp(s.Name(), signal.TypeSentiment, signal.Payload{
			Asset: asset,
			Score: score,
		}, s.confidence))
	}
	return out, nil
}

func (s *Sentiment) Cleanup() error { return nil }

func (s *Sentiment) SubscribedMessageTypes() []signal.MessageType {
	return []signal.MessageType{signal.TypeRegime}
}
