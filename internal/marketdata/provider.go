// Package marketdata defines the market data collaborators and the
// tick-to-candle aggregation that feeds the pipeline.
package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/pkg/types"
)

// MarketData serves historical candles and last-trade prices.
type MarketData interface {
	HistoricalCandles(ctx context.Context, symbol types.Symbol, tf types.Timeframe, from, to time.Time) ([]types.Candle, error)
	LatestPrice(ctx context.Context, symbol types.Symbol) (decimal.Decimal, error)
}

// TickProvider streams trade ticks for subscribed symbols. The returned
// channel closes when the subscription ends; disconnects are reported via
// the DisconnectListener, and reconnection is the provider's concern.
type TickProvider interface {
	Subscribe(ctx context.Context, symbols []types.Symbol) (<-chan types.Tick, error)
	LatestTick(symbol types.Symbol) (types.Tick, bool)
}

// DisconnectListener is notified when a feed drops.
type DisconnectListener func(source, reason string, at time.Time)
