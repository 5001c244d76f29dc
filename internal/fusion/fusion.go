package fusion

import (
	"sort"

	"github.com/hitherto/hitherto/internal/config"
	"github.com/hitherto/hitherto/internal/signal"
)

// Playbook maps regime labels to weighting profiles. Profiles come straight
// from config; lookups for unknown regimes fall back to SIDEWAYS.
type Playbook struct {
	profiles map[string]config.PlaybookProfile
	fallback string
}

func NewPlaybook(profiles map[string]config.PlaybookProfile) *Playbook {
	if len(profiles) == 0 {
		profiles = config.DefaultPlaybook()
	}
	return &Playbook{profiles: profiles, fallback: "SIDEWAYS"}
}

// Profile returns the weighting profile for a regime, falling back to the
// SIDEWAYS profile when the regime has no dedicated entry.
func (p *Playbook) Profile(regime string) config.PlaybookProfile {
	if prof, ok := p.profiles[regime]; ok {
		return prof
	}
	return p.profiles[p.fallback]
}

// moduleWeight resolves a signal's weight from the profile by its origin
// module's analyzer kind. Unknown origins weigh zero.
func moduleWeight(weights map[string]float64, s signal.Signal) float64 {
	var key string
	switch s.Type {
	case signal.TypeSentiment:
		key = "sentiment"
	case signal.TypeTechnical:
		key = "technical"
	case signal.TypeFundamental:
		key = "fundamental"
	case signal.TypeAltData, signal.TypeIntermarket:
		key = "altdata"
	case signal.TypeSeasonality:
		key = "seasonality"
	default:
		return 0
	}
	return weights[key]
}

// Fuse aggregates analyzer signals into per-asset conviction scores:
// weight * extracted score * confidence, summed per asset. Signals without an
// asset are skipped. Fuse is pure; call order does not affect the result.
func Fuse(signals map[string]signal.Signal, profile config.PlaybookProfile) map[string]float64 {
	scores := map[string]float64{}
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := signals[k]
		if s.Payload.Asset == "" {
			continue
		}
		w := moduleWeight(profile.Weights, s)
		if w == 0 {
			continue
		}
		scores[s.Payload.Asset] += w * s.Score() * s.ConfidenceOr(1.0)
	}
	return scores
}
