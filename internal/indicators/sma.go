package indicators

import (
	"fmt"

	"github.com/quantflow/tradeengine/pkg/types"
)

// SMA is the simple moving average of close prices.
type SMA struct {
	period int
}

// NewSMA creates an SMA calculator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA%d", s.period) }

func (s *SMA) MinPeriods() int { return s.period }

func (s *SMA) Calculate(candles []types.Candle) (types.IndicatorValues, error) {
	prices := closes(candles)
	return types.IndicatorValues{
		types.FieldValue: sma(prices[len(prices)-s.period:]),
	}, nil
}
