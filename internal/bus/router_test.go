package bus

import (
	"fmt"
	"testing"

	"github.com/hitherto/hitherto/internal/signal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentimentMsg(asset string, conf float64) signal.Signal {
	return signal.Signal{
		Origin:     "sentiment",
		Type:       signal.TypeSentiment,
		Payload:    signal.Payload{Asset: asset, Score: 0.5},
		Confidence: signal.Conf(conf),
	}
}

func TestRouter_RouteMatchesSourceAndType(t *testing.T) {
	r := NewRouter(10, zerolog.Nop())
	r.AddRule(Rule{
		Source:  "sentiment",
		Targets: []string{"overseer"},
		Types:   []signal.MessageType{signal.TypeSentiment},
	})

	assert.Equal(t, []string{"overseer"}, r.Route(sentimentMsg("AAPL", 0.9)))
	assert.Empty(t, r.Route(signal.Signal{Origin: "technical", Type: signal.TypeSentiment}))
	assert.Empty(t, r.Route(signal.Signal{Origin: "sentiment", Type: signal.TypeTechnical}))
}

func TestRouter_Conditions(t *testing.T) {
	r := NewRouter(10, zerolog.Nop())
	r.AddRule(Rule{
		Source:  "sentiment",
		Targets: []string{"overseer"},
		Types:   []signal.MessageType{signal.TypeSentiment},
		Conditions: Conditions{
			MinConfidence: signal.Conf(0.7),
			AssetFilter:   []string{"AAPL", "MSFT"},
		},
	})

	t.Run("passes filter", func(t *testing.T) {
		assert.NotEmpty(t, r.Route(sentimentMsg("AAPL", 0.9)))
	})
	t.Run("confidence too low", func(t *testing.T) {
		assert.Empty(t, r.Route(sentimentMsg("AAPL", 0.5)))
	})
	t.Run("missing confidence fails min check", func(t *testing.T) {
		msg := sentimentMsg("AAPL", 0)
		msg.Confidence = nil
		assert.Empty(t, r.Route(msg))
	})
	t.Run("asset not in filter", func(t *testing.T) {
		assert.Empty(t, r.Route(sentimentMsg("TSLA", 0.9)))
	})
}

func TestRouter_TargetUnionDeduplicates(t *testing.T) {
	r := NewRouter(10, zerolog.Nop())
	r.AddRule(Rule{Source: "sentiment", Targets: []string{"overseer", "risk"}, Types: []signal.MessageType{signal.TypeSentiment}})
	r.AddRule(Rule{Source: "sentiment", Targets: []string{"overseer"}, Types: []signal.MessageType{signal.TypeSentiment}})

	assert.ElementsMatch(t, []string{"overseer", "risk"}, r.Route(sentimentMsg("AAPL", 0.9)))
}

func TestRouter_QueueAndClear(t *testing.T) {
	r := NewRouter(10, zerolog.Nop())
	r.AddRule(Rule{Source: "sentiment", Targets: []string{"overseer"}, Types: []signal.MessageType{signal.TypeSentiment}})

	r.Publish(sentimentMsg("AAPL", 0.9))
	r.Publish(sentimentMsg("MSFT", 0.9))
	require.Len(t, r.MessagesFor("overseer"), 2)
	assert.Empty(t, r.MessagesFor("execution"))

	r.ClearQueue()
	assert.Empty(t, r.MessagesFor("overseer"))
	// history survives the queue clear
	assert.Equal(t, 2, r.Stats().HistorySize)
}

func TestRouter_BoundedHistoryEvictsOldest(t *testing.T) {
	r := NewRouter(5, zerolog.Nop())
	for i := 0; i < 8; i++ {
		r.Publish(sentimentMsg(fmt.Sprintf("A%d", i), 0.9))
	}
	st := r.Stats()
	assert.Equal(t, 5, st.HistorySize)
	assert.Equal(t, 8, st.QueuedMessages)
}

func TestRouter_RemoveRule(t *testing.T) {
	r := NewRouter(10, zerolog.Nop())
	r.AddRule(Rule{Source: "sentiment", Targets: []string{"overseer"}, Types: []signal.MessageType{signal.TypeSentiment}})

	require.True(t, r.RemoveRule("sentiment", []signal.MessageType{signal.TypeSentiment}))
	assert.Empty(t, r.Route(sentimentMsg("AAPL", 0.9)))
	assert.False(t, r.RemoveRule("sentiment", []signal.MessageType{signal.TypeSentiment}))
}

func TestRouter_DefaultRules(t *testing.T) {
	r := NewRouter(10, zerolog.Nop())
	r.InstallDefaultRules(map[string]signal.MessageType{
		"sentiment": signal.TypeSentiment,
		"technical": signal.TypeTechnical,
	})

	assert.Equal(t, []string{"overseer"}, r.Route(sentimentMsg("AAPL", 0.9)))

	regime := signal.Signal{Origin: "overseer", Type: signal.TypeRegime, Payload: signal.Payload{RegimeLabel: "BULL"}}
	assert.ElementsMatch(t, []string{"sentiment", "technical", "risk"}, r.Route(regime))

	verdict := signal.Signal{Origin: "risk", Type: signal.TypeRisk}
	assert.ElementsMatch(t, []string{"execution", "overseer"}, r.Route(verdict))

	proposal := signal.Signal{Origin: "overseer", Type: signal.TypeProposal}
	assert.Equal(t, []string{"risk"}, r.Route(proposal))
}

func TestRouter_StatsTypeDistribution(t *testing.T) {
	r := NewRouter(100, zerolog.Nop())
	r.Publish(sentimentMsg("AAPL", 0.9))
	r.Publish(sentimentMsg("MSFT", 0.9))
	r.Publish(signal.Signal{Origin: "overseer", Type: signal.TypeRegime})

	st := r.Stats()
	assert.Equal(t, 2, st.TypeDistribution[signal.TypeSentiment])
	assert.Equal(t, 1, st.TypeDistribution[signal.TypeRegime])
}
