package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an immutable OHLCV summary for one (symbol, timeframe, bucket).
type Candle struct {
	Symbol    Symbol          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
	Timestamp time.Time       `json:"timestamp"` // open time of the bucket
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Key returns the candle's idempotency key, stable across redeliveries.
func (c Candle) Key() string {
	return fmt.Sprintf("%s|%s|%d", c.Symbol, c.Timeframe, c.Timestamp.Unix())
}

// Tick is a single observed trade or quote update. Append-only.
type Tick struct {
	Symbol    Symbol          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
}
