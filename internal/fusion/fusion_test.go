package fusion

import (
	"testing"

	"github.com/hitherto/hitherto/internal/config"
	"github.com/hitherto/hitherto/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuse_WeightedSum(t *testing.T) {
	profile := config.DefaultPlaybook()["BULL"]
	signals := map[string]signal.Signal{
		"sentiment_AAPL": {
			Type:       signal.TypeSentiment,
			Payload:    signal.Payload{Asset: "AAPL", Score: 0.8},
			Confidence: signal.Conf(0.9),
		},
		"technical_AAPL": {
			Type:       signal.TypeTechnical,
			Payload:    signal.Payload{Asset: "AAPL", Strength: "bullish"},
			Confidence: signal.Conf(1.0),
		},
	}

	scores := Fuse(signals, profile)
	require.Contains(t, scores, "AAPL")
	// 0.3*0.8*0.9 + 0.3*1.0*1.0
	assert.InDelta(t, 0.516, scores["AAPL"], 1e-9)
}

func TestFuse_MissingConfidenceDefaultsToOne(t *testing.T) {
	profile := config.DefaultPlaybook()["BULL"]
	scores := Fuse(map[string]signal.Signal{
		"s": {Type: signal.TypeSentiment, Payload: signal.Payload{Asset: "MSFT", Score: 0.5}},
	}, profile)
	assert.InDelta(t, 0.15, scores["MSFT"], 1e-9)
}

func TestFuse_SkipsSignalsWithoutAsset(t *testing.T) {
	profile := config.DefaultPlaybook()["BULL"]
	scores := Fuse(map[string]signal.Signal{
		"s": {Type: signal.TypeSentiment, Payload: signal.Payload{Score: 0.9}},
	}, profile)
	assert.Empty(t, scores)
}

func TestFuse_BearishAndNeutralTechnical(t *testing.T) {
	profile := config.DefaultPlaybook()["BEAR"]
	scores := Fuse(map[string]signal.Signal{
		"t1": {Type: signal.TypeTechnical, Payload: signal.Payload{Asset: "TSLA", Strength: "bearish"}, Confidence: signal.Conf(1)},
		"t2": {Type: signal.TypeTechnical, Payload: signal.Payload{Asset: "SPY", Strength: "neutral"}, Confidence: signal.Conf(1)},
	}, profile)
	assert.InDelta(t, -0.4, scores["TSLA"], 1e-9)
	assert.NotContains(t, scores, "SPY")
}

func TestPlaybook_FallbackProfile(t *testing.T) {
	pb := NewPlaybook(nil)
	got := pb.Profile("CRISIS")
	want := config.DefaultPlaybook()["SIDEWAYS"]
	assert.Equal(t, want.Weights, got.Weights)
}

func TestFuse_Deterministic(t *testing.T) {
	profile := config.DefaultPlaybook()["SIDEWAYS"]
	signals := map[string]signal.Signal{
		"f": {Type: signal.TypeFundamental, Payload: signal.Payload{Asset: "AAPL", MispricingPct: 10}, Confidence: signal.Conf(0.7)},
		"s": {Type: signal.TypeSentiment, Payload: signal.Payload{Asset: "AAPL", Score: -0.2}, Confidence: signal.Conf(0.5)},
	}
	first := Fuse(signals, profile)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Fuse(signals, profile))
	}
}
