package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

func usd(v int64) types.Money {
	return types.Money{Amount: decimal.NewFromInt(v), Currency: "USD"}
}

func testAccount(buyingPower int64) types.AccountInfo {
	return types.AccountInfo{
		Cash:        usd(buyingPower),
		Equity:      usd(buyingPower),
		BuyingPower: usd(buyingPower),
	}
}

func buyDecision(pct int64) types.TradeDecision {
	return types.TradeDecision{
		ID:              "dec-1",
		Symbol:          "BTCUSDT",
		Timeframe:       types.Timeframe1h,
		Timestamp:       time.Unix(1700000000, 0).UTC(),
		Action:          types.ActionBuy,
		QuantityPercent: decimal.NewFromInt(pct),
		Confidence:      0.8,
		Engine:          "deterministic",
	}
}

func TestBuildOrder_PercentSizing(t *testing.T) {
	p := &Policy{}

	// 10% of $100,000 buying power at $50,000 per unit is 0.2 units.
	req, err := p.BuildOrder(buyDecision(10), testAccount(100_000), nil, decimal.NewFromInt(50_000))
	require.NoError(t, err)

	assert.Equal(t, types.SideBuy, req.Side)
	assert.Equal(t, types.OrderTypeMarket, req.Type)
	assert.True(t, req.Quantity.Decimal().Equal(decimal.RequireFromString("0.2")),
		"got %s", req.Quantity)
	assert.Equal(t, "dec-1", req.DecisionID)
}

func TestBuildOrder_QuantityRoundsDown(t *testing.T) {
	p := &Policy{}

	// 100000/30000 = 3.3333... must truncate at 8 decimal places, never
	// round up past the implied notional.
	req, err := p.BuildOrder(buyDecision(100), testAccount(100_000), nil, decimal.NewFromInt(30_000))
	require.NoError(t, err)

	assert.True(t, req.Quantity.Decimal().Equal(decimal.RequireFromString("3.33333333")),
		"got %s", req.Quantity)
	notional := req.Quantity.Decimal().Mul(decimal.NewFromInt(30_000))
	assert.True(t, notional.LessThanOrEqual(decimal.NewFromInt(100_000)))
}

func TestBuildOrder_ExplicitQuantityWins(t *testing.T) {
	p := &Policy{}

	d := buyDecision(10)
	d.Quantity = types.NewQuantityFromFloat(1.5)

	req, err := p.BuildOrder(d, testAccount(100_000), nil, decimal.NewFromInt(50_000))
	require.NoError(t, err)
	assert.True(t, req.Quantity.Decimal().Equal(decimal.RequireFromString("1.5")))
}

func TestBuildOrder_SellSizesAgainstPosition(t *testing.T) {
	p := &Policy{}

	pos := &types.Position{
		Symbol:   "BTCUSDT",
		Quantity: types.NewQuantityFromFloat(2),
	}
	d := buyDecision(50)
	d.Action = types.ActionSell

	req, err := p.BuildOrder(d, testAccount(0), pos, decimal.NewFromInt(50_000))
	require.NoError(t, err)
	assert.Equal(t, types.SideSell, req.Side)
	assert.True(t, req.Quantity.Decimal().Equal(decimal.NewFromInt(1)), "got %s", req.Quantity)
}

func TestBuildOrder_ReduceWithoutPositionFails(t *testing.T) {
	p := &Policy{}

	d := buyDecision(50)
	d.Action = types.ActionReduce

	_, err := p.BuildOrder(d, testAccount(100_000), nil, decimal.NewFromInt(50_000))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestBuildOrder_HoldIsNotExecutable(t *testing.T) {
	p := &Policy{}

	d := buyDecision(10)
	d.Action = types.ActionHold

	_, err := p.BuildOrder(d, testAccount(100_000), nil, decimal.NewFromInt(50_000))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestBuildOrder_LimitOrdersCarryPrice(t *testing.T) {
	p := &Policy{UseLimitOrders: true}

	req, err := p.BuildOrder(buyDecision(10), testAccount(100_000), nil, decimal.NewFromInt(50_000))
	require.NoError(t, err)
	assert.Equal(t, types.OrderTypeLimit, req.Type)
	assert.True(t, req.LimitPrice.Equal(decimal.NewFromInt(50_000)))
}

func TestClientOrderID_Deterministic(t *testing.T) {
	a := ClientOrderID("dec-1")
	b := ClientOrderID("dec-1")
	c := ClientOrderID("dec-2")

	assert.Equal(t, a, b, "same decision must map to the same order id")
	assert.NotEqual(t, a, c)
}
