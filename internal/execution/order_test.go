package execution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/pkg/types"
)

func newTestOrder(t *testing.T, qty float64) *Order {
	t.Helper()
	p := &Policy{}
	d := buyDecision(10)
	d.Quantity = types.NewQuantityFromFloat(qty)
	req, err := p.BuildOrder(d, testAccount(1_000_000), nil, decimal.NewFromInt(50_000))
	require.NoError(t, err)
	return NewOrder(req, time.Unix(1700000000, 0).UTC())
}

func TestOrder_Lifecycle(t *testing.T) {
	now := time.Unix(1700000100, 0).UTC()
	o := newTestOrder(t, 1)
	assert.Equal(t, StatusNew, o.Status)

	require.True(t, o.MarkSubmitted("broker-1", now))
	assert.Equal(t, StatusSubmitted, o.Status)
	assert.Equal(t, "broker-1", o.BrokerOrderID)

	require.True(t, o.ApplyFill(types.NewQuantityFromFloat(0.4), now))
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.True(t, o.Remaining().Decimal().Equal(decimal.RequireFromString("0.6")))

	require.True(t, o.ApplyFill(types.NewQuantityFromFloat(0.6), now))
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.Remaining().IsZero())
}

func TestOrder_FillBeforeSubmitIgnored(t *testing.T) {
	o := newTestOrder(t, 1)
	assert.False(t, o.ApplyFill(types.NewQuantityFromFloat(0.5), time.Now()))
	assert.Equal(t, StatusNew, o.Status)
}

func TestOrder_TerminalTransitionsAreNoOps(t *testing.T) {
	now := time.Now().UTC()
	o := newTestOrder(t, 1)
	require.True(t, o.MarkSubmitted("broker-1", now))
	require.True(t, o.ApplyFill(types.NewQuantityFromFloat(1), now))
	require.Equal(t, StatusFilled, o.Status)

	assert.False(t, o.ApplyFill(types.NewQuantityFromFloat(1), now), "replayed fill on a filled order")
	assert.False(t, o.MarkCanceled(now), "cancel on a filled order")
	assert.False(t, o.MarkSubmitted("broker-2", now))
	assert.Equal(t, StatusFilled, o.Status)
	assert.Equal(t, "broker-1", o.BrokerOrderID)
}

func TestOrder_Cancel(t *testing.T) {
	now := time.Now().UTC()
	o := newTestOrder(t, 1)
	require.True(t, o.MarkSubmitted("broker-1", now))
	require.True(t, o.ApplyFill(types.NewQuantityFromFloat(0.3), now))

	require.True(t, o.MarkCanceled(now))
	assert.Equal(t, StatusCanceled, o.Status)
	assert.False(t, o.ApplyFill(types.NewQuantityFromFloat(0.7), now), "fill after cancel")
	assert.True(t, o.FilledQty.Decimal().Equal(decimal.RequireFromString("0.3")))
}
