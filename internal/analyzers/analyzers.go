// Package analyzers holds the built-in analyzer modules. Each one reads a
// static per-asset dataset from its config block and emits one typed signal
// per asset per cycle; swapping in live data sources means replacing the
// Initialize step, not the module contract.
package analyzers

import (
	"fmt"
	"time"

	"github.com/hitherto/hitherto/internal/signal"
)

// assetFloats pulls a map[asset]float64 out of a raw config block.
func assetFloats(cfg map[string]any, key string) (map[string]float64, error) {
	raw, ok := cfg[key]
	if !ok {
		return nil, fmt.Errorf("missing %q config", key)
	}
	out := map[string]float64{}
	switch m := raw.(type) {
	case map[string]float64:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("%s[%s]: expected number, got %T", key, k, v)
			}
			out[k] = f
		}
	default:
		return nil, fmt.Errorf("%s: expected map, got %T", key, raw)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func stamp(origin string, typ signal.MessageType, p signal.Payload, conf float64) signal.Signal {
	return signal.Signal{
		Origin:     origin,
		Timestamp:  time.Now().UTC(),
		Type:       typ,
		Payload:    p,
		Confidence: signal.Conf(conf),
	}
}
