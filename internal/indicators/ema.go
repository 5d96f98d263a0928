package indicators

import (
	"fmt"

	"github.com/quantflow/tradeengine/pkg/types"
)

// EMA is the exponential moving average of close prices.
type EMA struct {
	period int
}

// NewEMA creates an EMA calculator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA%d", e.period) }

func (e *EMA) MinPeriods() int { return e.period }

func (e *EMA) Calculate(candles []types.Candle) (types.IndicatorValues, error) {
	series := emaSeries(closes(candles), e.period)
	return types.IndicatorValues{types.FieldValue: series[len(series)-1]}, nil
}
