package indicators

import (
	"fmt"
	"math"

	"github.com/quantflow/tradeengine/pkg/types"
)

// ATR is the Average True Range, a volatility measure built from the
// true range of each candle smoothed with Wilder's method.
type ATR struct {
	period int
}

// NewATR creates an ATR calculator, conventionally over 14 periods.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR%d", a.period) }

// MinPeriods needs one extra candle for the first previous close.
func (a *ATR) MinPeriods() int { return a.period + 1 }

func (a *ATR) Calculate(candles []types.Candle) (types.IndicatorValues, error) {
	ranges := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		ranges = append(ranges, trueRange(candles[i], candles[i-1]))
	}

	// Wilder smoothing: seed with the SMA of the first period true
	// ranges, then blend each subsequent range in at weight 1/period.
	atr := sma(ranges[:a.period])
	for _, tr := range ranges[a.period:] {
		atr = (atr*float64(a.period-1) + tr) / float64(a.period)
	}

	return types.IndicatorValues{
		types.FieldValue: atr,
	}, nil
}

// trueRange is the largest of the candle range and the gaps from the
// previous close to the current high and low.
func trueRange(c, prev types.Candle) float64 {
	high := c.High.InexactFloat64()
	low := c.Low.InexactFloat64()
	prevClose := prev.Close.InexactFloat64()

	tr := high - low
	tr = math.Max(tr, math.Abs(high-prevClose))
	return math.Max(tr, math.Abs(low-prevClose))
}
