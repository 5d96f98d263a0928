package indicators

import (
	"github.com/quantflow/tradeengine/pkg/types"
)

// MACD field names in the result payload.
const (
	MACDFieldLine      = "macd"
	MACDFieldSignal    = "signal"
	MACDFieldHistogram = "histogram"
)

// MACD is the Moving Average Convergence Divergence indicator.
// It recomputes the full EMA series from the window on every call, keeping
// the calculator stateless and its output reproducible.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a MACD calculator with the given fast, slow and signal
// EMA periods. The conventional parameterization is (12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fastPeriod: fast, slowPeriod: slow, signalPeriod: signal}
}

func (m *MACD) Name() string { return "MACD" }

// MinPeriods requires enough candles that the signal EMA has a full
// initialization window of MACD values.
func (m *MACD) MinPeriods() int { return m.slowPeriod + m.signalPeriod - 1 }

// Calculate returns the MACD line, signal line and histogram for the last
// candle of the window.
func (m *MACD) Calculate(candles []types.Candle) (types.IndicatorValues, error) {
	prices := closes(candles)
	fast := emaSeries(prices, m.fastPeriod)
	slow := emaSeries(prices, m.slowPeriod)

	// MACD series starts where the slow EMA is defined.
	macd := make([]float64, 0, len(prices)-m.slowPeriod+1)
	for i := m.slowPeriod - 1; i < len(prices); i++ {
		macd = append(macd, fast[i]-slow[i])
	}

	signal := emaSeries(macd, m.signalPeriod)
	line := macd[len(macd)-1]
	sig := signal[len(signal)-1]

	return types.IndicatorValues{
		MACDFieldLine:      line,
		MACDFieldSignal:    sig,
		MACDFieldHistogram: line - sig,
	}, nil
}
