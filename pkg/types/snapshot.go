package types

import (
	"fmt"
	"time"
)

// IndicatorValues holds the named numeric outputs of one indicator for one
// candle. Scalar indicators use the "value" field; structured indicators
// (e.g. MACD) expose one field per series.
type IndicatorValues map[string]float64

// FieldValue is the conventional key for scalar indicator outputs.
const FieldValue = "value"

// IndicatorSnapshot is the full set of indicator outputs computed for one
// candle close. There is exactly one snapshot per (symbol, timeframe,
// candle timestamp); recomputation overwrites with an equal value.
type IndicatorSnapshot struct {
	Symbol     Symbol                     `json:"symbol"`
	Timeframe  Timeframe                  `json:"timeframe"`
	Timestamp  time.Time                  `json:"timestamp"`
	Close      float64                    `json:"close"`
	Indicators map[string]IndicatorValues `json:"indicators"`
}

// Key returns the snapshot's idempotency key.
func (s IndicatorSnapshot) Key() string {
	return fmt.Sprintf("%s|%s|%d", s.Symbol, s.Timeframe, s.Timestamp.Unix())
}

// Value looks up one field of one indicator. The second return is false
// when the indicator or field is absent.
func (s IndicatorSnapshot) Value(indicator, field string) (float64, bool) {
	vals, ok := s.Indicators[indicator]
	if !ok {
		return 0, false
	}
	v, ok := vals[field]
	return v, ok
}
