package indicators

import (
	"github.com/quantflow/tradeengine/pkg/types"
)

// Stochastic oscillator field names.
const (
	StochasticFieldK = "k"
	StochasticFieldD = "d"
)

// Stochastic is the stochastic oscillator: %K measures where the close
// sits inside the recent high-low range, %D is an SMA of %K. Both are
// bounded in [0, 100].
type Stochastic struct {
	kPeriod int
	dPeriod int
}

// NewStochastic creates a stochastic oscillator, conventionally (14, 3).
func NewStochastic(kPeriod, dPeriod int) *Stochastic {
	return &Stochastic{kPeriod: kPeriod, dPeriod: dPeriod}
}

func (s *Stochastic) Name() string { return "STOCH" }

// MinPeriods needs dPeriod %K values, each over a kPeriod window.
func (s *Stochastic) MinPeriods() int { return s.kPeriod + s.dPeriod - 1 }

// Calculate returns %K for the last candle and %D over the last dPeriod
// candles.
func (s *Stochastic) Calculate(candles []types.Candle) (types.IndicatorValues, error) {
	kValues := make([]float64, 0, s.dPeriod)
	for i := len(candles) - s.dPeriod; i < len(candles); i++ {
		kValues = append(kValues, s.percentK(candles[:i+1]))
	}

	return types.IndicatorValues{
		StochasticFieldK: kValues[len(kValues)-1],
		StochasticFieldD: sma(kValues),
	}, nil
}

// percentK computes %K for the last candle of the window.
func (s *Stochastic) percentK(candles []types.Candle) float64 {
	window := candles[len(candles)-s.kPeriod:]
	low := window[0].Low.InexactFloat64()
	high := window[0].High.InexactFloat64()
	for _, c := range window[1:] {
		if l := c.Low.InexactFloat64(); l < low {
			low = l
		}
		if h := c.High.InexactFloat64(); h > high {
			high = h
		}
	}

	if high == low {
		// Flat range: by convention the close sits mid-range.
		return 50
	}
	close := window[len(window)-1].Close.InexactFloat64()
	return (close - low) / (high - low) * 100
}
