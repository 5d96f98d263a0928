package indicators

import (
	"github.com/quantflow/tradeengine/pkg/types"
)

// Calculator computes one indicator over an ordered candle window.
// Implementations must be deterministic and side-effect-free: the same
// window always yields the same result, so recomputed snapshots are
// byte-equal and idempotency checks can diff them.
type Calculator interface {
	// Name is the registry key, e.g. "MACD".
	Name() string
	// MinPeriods is the shortest candle window the calculator accepts.
	MinPeriods() int
	// Calculate evaluates the indicator over candles ordered oldest first.
	Calculate(candles []types.Candle) (types.IndicatorValues, error)
}

// closes extracts close prices as float64 for indicator math. Monetary
// values stay decimal everywhere else; indicator formulas are conventional
// floating-point.
func closes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}
