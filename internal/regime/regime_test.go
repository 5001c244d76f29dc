package regime

import (
	"context"
	"testing"

	"github.com/hitherto/hitherto/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticalDetector(t *testing.T) {
	d := NewStatisticalDetector()
	ctx := context.Background()

	t.Run("bullish mean", func(t *testing.T) {
		label, conf, err := d.Detect(ctx, map[string]signal.Signal{
			"a": {Type: signal.TypeSentiment, Payload: signal.Payload{Asset: "AAPL", Score: 0.8}, Confidence: signal.Conf(1)},
			"b": {Type: signal.TypeTechnical, Payload: signal.Payload{Asset: "AAPL", Strength: "bullish"}, Confidence: signal.Conf(1)},
		})
		require.NoError(t, err)
		assert.Equal(t, Bull, label)
		assert.Greater(t, conf, 0.0)
	})

	t.Run("bearish mean", func(t *testing.T) {
		label, _, err := d.Detect(ctx, map[string]signal.Signal{
			"a": {Type: signal.TypeSentiment, Payload: signal.Payload{Asset: "TSLA", Score: -0.9}, Confidence: signal.Conf(1)},
		})
		require.NoError(t, err)
		assert.Equal(t, Bear, label)
	})

	t.Run("no signals defaults sideways", func(t *testing.T) {
		label, conf, err := d.Detect(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, Sideways, label)
		assert.Zero(t, conf)
	})

	t.Run("pipeline signals excluded", func(t *testing.T) {
		label, _, err := d.Detect(ctx, map[string]signal.Signal{
			"r": {Type: signal.TypeRegime, Payload: signal.Payload{RegimeLabel: "BULL"}},
		})
		require.NoError(t, err)
		assert.Equal(t, Sideways, label)
	})
}
