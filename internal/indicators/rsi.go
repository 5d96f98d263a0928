package indicators

import (
	"math"

	"github.com/quantflow/tradeengine/pkg/types"
)

// RSI is the Relative Strength Index, bounded in [0, 100].
type RSI struct {
	period int
}

// NewRSI creates an RSI calculator with the given lookback period.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return "RSI" }

// MinPeriods needs one extra candle to form the first price change.
func (r *RSI) MinPeriods() int { return r.period + 1 }

// Calculate averages gains and losses over the last period changes.
// With no losses in the window the RSI is pinned at 100; with no gains, 0.
func (r *RSI) Calculate(candles []types.Candle) (types.IndicatorValues, error) {
	prices := closes(candles)

	gains := make([]float64, 0, r.period)
	losses := make([]float64, 0, r.period)
	for i := len(prices) - r.period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, math.Abs(change))
		}
	}

	avgGain := sma(gains)
	avgLoss := sma(losses)

	var value float64
	switch {
	case avgLoss == 0:
		value = 100
	case avgGain == 0:
		value = 0
	default:
		rs := avgGain / avgLoss
		value = 100 - (100 / (1 + rs))
	}

	return types.IndicatorValues{types.FieldValue: value}, nil
}
