package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/pkg/types"
)

func candleAt(ts int64) types.Candle {
	return types.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Timestamp: time.Unix(ts, 0).UTC(),
		Open:      decimal.NewFromInt(100),
		High:      decimal.NewFromInt(110),
		Low:       decimal.NewFromInt(95),
		Close:     decimal.NewFromInt(105),
		Volume:    decimal.NewFromInt(10),
	}
}

func TestMemoryCandleStore_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCandleStore()

	c := candleAt(1700000000)
	first, err := s.Append(ctx, c)
	require.NoError(t, err)
	assert.True(t, first)

	dup := c
	dup.Close = decimal.NewFromInt(999)
	second, err := s.Append(ctx, dup)
	require.NoError(t, err)
	assert.False(t, second, "same key must not be stored twice")

	stored, ok, err := s.Get(ctx, c.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, stored.Close.Equal(decimal.NewFromInt(105)), "first write wins")
}

func TestMemoryCandleStore_RangeOrderedDespiteLateArrival(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCandleStore()

	for _, ts := range []int64{1700003600, 1700000000, 1700007200} {
		_, err := s.Append(ctx, candleAt(ts))
		require.NoError(t, err)
	}

	got, err := s.Range(ctx, "BTCUSDT", types.Timeframe1h,
		time.Unix(1700000000, 0), time.Unix(1700007200, 0))
	require.NoError(t, err)
	require.Len(t, got, 2, "range end is exclusive")
	assert.Equal(t, int64(1700000000), got[0].Timestamp.Unix())
	assert.Equal(t, int64(1700003600), got[1].Timestamp.Unix())
}

func TestMemoryFillStore_JournalAndReplay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFillStore()

	f := types.Fill{
		ID:        "fill-1",
		OrderID:   "ord-1",
		Symbol:    "BTCUSDT",
		Side:      types.SideBuy,
		Quantity:  types.NewQuantityFromFloat(1),
		Price:     decimal.NewFromInt(50000),
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	first, err := s.Append(ctx, f)
	require.NoError(t, err)
	assert.True(t, first)

	replayed, err := s.Append(ctx, f)
	require.NoError(t, err)
	assert.False(t, replayed)

	fills, err := s.Range(ctx, time.Unix(1699999999, 0), time.Unix(1700000001, 0))
	require.NoError(t, err)
	assert.Len(t, fills, 1, "replayed fill must not duplicate the journal")
}

func TestMemoryOrderStore_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryOrderStore()

	req := execution.OrderRequest{
		ClientOrderID: "cli-1",
		Symbol:        "BTCUSDT",
		Side:          types.SideBuy,
		Type:          types.OrderTypeMarket,
		Quantity:      types.NewQuantityFromFloat(0.2),
	}
	now := time.Unix(1700000000, 0).UTC()
	ord := execution.NewOrder(req, now)
	ord.MarkSubmitted("brk-1", now)

	first, err := s.Append(ctx, *ord)
	require.NoError(t, err)
	assert.True(t, first)

	replay := execution.NewOrder(req, now.Add(time.Minute))
	stored, err := s.Append(ctx, *replay)
	require.NoError(t, err)
	assert.False(t, stored, "replayed client order id must not overwrite")

	got, ok, err := s.Get(ctx, "cli-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, execution.StatusSubmitted, got.Status)
	assert.Equal(t, "brk-1", got.BrokerOrderID)
}

func TestMemoryDecisionStore_KeyIncludesEngine(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryDecisionStore()

	d := types.TradeDecision{
		ID:        "dec-1",
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Action:    types.ActionBuy,
		Engine:    "deterministic",
	}
	first, err := s.Append(ctx, d)
	require.NoError(t, err)
	assert.True(t, first)

	other := d
	other.ID = "dec-2"
	other.Engine = "ai-agent"
	stored, err := s.Append(ctx, other)
	require.NoError(t, err)
	assert.True(t, stored, "different engine identity is a distinct key")
}
