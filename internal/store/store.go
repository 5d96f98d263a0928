// Package store defines the persistence collaborators the pipeline
// depends on and ships in-memory implementations. Every store exposes
// lookup by idempotency key so stages can check-before-write on
// redelivered events.
package store

import (
	"context"
	"time"

	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/pkg/types"
)

// CandleStore persists closed candles keyed by (symbol, timeframe, ts).
type CandleStore interface {
	// Append stores a candle. Returns false when the key already exists;
	// the stored candle is never replaced.
	Append(ctx context.Context, c types.Candle) (bool, error)
	Get(ctx context.Context, key string) (types.Candle, bool, error)
	// Range returns candles for a lineage in [from, to), ordered by
	// timestamp ascending.
	Range(ctx context.Context, symbol types.Symbol, tf types.Timeframe, from, to time.Time) ([]types.Candle, error)
}

// SnapshotStore persists indicator snapshots under the candle's key.
type SnapshotStore interface {
	Append(ctx context.Context, s types.IndicatorSnapshot) (bool, error)
	Get(ctx context.Context, key string) (types.IndicatorSnapshot, bool, error)
}

// DecisionStore persists trade decisions under their idempotency key.
type DecisionStore interface {
	Append(ctx context.Context, d types.TradeDecision) (bool, error)
	Get(ctx context.Context, key string) (types.TradeDecision, bool, error)
	// Range returns decisions for a symbol ordered by candle timestamp.
	Range(ctx context.Context, symbol types.Symbol, from, to time.Time) ([]types.TradeDecision, error)
}

// OrderStore tracks orders by client order id, the execution-stage
// idempotency key. A stored client order id means the approval that
// produced it has already reached the broker (or was terminally
// rejected); redelivered approvals consult it before submitting.
type OrderStore interface {
	Append(ctx context.Context, o execution.Order) (bool, error)
	Get(ctx context.Context, clientOrderID string) (execution.Order, bool, error)
}

// FillStore is the append-only fill journal, keyed by fill id.
type FillStore interface {
	Append(ctx context.Context, f types.Fill) (bool, error)
	Get(ctx context.Context, id string) (types.Fill, bool, error)
	// Range returns fills in [from, to) across all symbols, ordered by
	// execution time, for reporting.
	Range(ctx context.Context, from, to time.Time) ([]types.Fill, error)
}
