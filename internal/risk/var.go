package risk

import (
	"math"
	"sort"
)

// minVaRSamples is the floor below which historical-simulation VaR is not
// meaningful; shorter series report zero risk rather than a noisy estimate.
const minVaRSamples = 30

// percentile computes the q-th percentile (0..100) of values using linear
// interpolation between order statistics on the sorted copy.
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// HistoricalVaR is the historical-simulation value at risk of a return series
// at the given confidence (e.g. 0.95), expressed as a positive loss fraction.
// Series shorter than minVaRSamples yield zero.
func HistoricalVaR(returns []float64, confidence float64) float64 {
	if len(returns) < minVaRSamples {
		return 0
	}
	return -percentile(returns, (1-confidence)*100)
}

// HistoricalCVaR is the expected shortfall: the mean loss across the tail at
// or beyond the VaR threshold, as a positive fraction.
func HistoricalCVaR(returns []float64, confidence float64) float64 {
	if len(returns) < minVaRSamples {
		return 0
	}
	threshold := percentile(returns, (1-confidence)*100)
	var sum float64
	var n int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return -sum / float64(n)
}

// CorrelationProvider supplies pairwise asset correlations for portfolio VaR
// aggregation.
type CorrelationProvider interface {
	Correlation(a, b string) float64
}

// ConstantCorrelation assumes one average correlation between every distinct
// asset pair. It is the default provider.
type ConstantCorrelation struct {
	Rho float64
}

func (c ConstantCorrelation) Correlation(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return c.Rho
}

// PortfolioVaR aggregates per-asset VaR into a portfolio figure using the
// variance-covariance form over normalized position weights.
func PortfolioVaR(sizes map[string]float64, assetVaR map[string]float64, corr CorrelationProvider) float64 {
	var total float64
	for _, s := range sizes {
		total += math.Abs(s)
	}
	if total == 0 {
		return 0
	}
	assets := make([]string, 0, len(sizes))
	for a := range sizes {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	var sum float64
	for _, a := range assets {
		for _, b := range assets {
			wa := math.Abs(sizes[a]) / total
			wb := math.Abs(sizes[b]) / total
			sum += wa * wb * assetVaR[a] * assetVaR[b] * corr.Correlation(a, b)
		}
	}
	return math.Sqrt(sum)
}
