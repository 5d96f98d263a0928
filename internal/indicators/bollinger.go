package indicators

import (
	"fmt"
	"math"

	"github.com/quantflow/tradeengine/pkg/types"
)

// Bollinger band field names.
const (
	BollingerFieldMiddle   = "middle"
	BollingerFieldUpper    = "upper"
	BollingerFieldLower    = "lower"
	BollingerFieldPercentB = "percent_b"
)

// Bollinger computes Bollinger Bands: an SMA middle band with upper and
// lower bands offset by a standard-deviation multiple. %B locates the
// close relative to the bands (0 at the lower band, 1 at the upper).
type Bollinger struct {
	period int
	stdDev float64
}

// NewBollinger creates a Bollinger Bands calculator, conventionally (20, 2.0).
func NewBollinger(period int, stdDev float64) *Bollinger {
	return &Bollinger{period: period, stdDev: stdDev}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BB%d", b.period) }

func (b *Bollinger) MinPeriods() int { return b.period }

func (b *Bollinger) Calculate(candles []types.Candle) (types.IndicatorValues, error) {
	prices := closes(candles)
	window := prices[len(prices)-b.period:]

	middle := sma(window)
	variance := 0.0
	for _, p := range window {
		d := p - middle
		variance += d * d
	}
	sigma := math.Sqrt(variance / float64(b.period))

	upper := middle + b.stdDev*sigma
	lower := middle - b.stdDev*sigma

	// Flat windows collapse the bands; report the close as mid-band.
	percentB := 0.5
	if upper != lower {
		percentB = (window[len(window)-1] - lower) / (upper - lower)
	}

	return types.IndicatorValues{
		BollingerFieldMiddle:   middle,
		BollingerFieldUpper:    upper,
		BollingerFieldLower:    lower,
		BollingerFieldPercentB: percentB,
	}, nil
}
