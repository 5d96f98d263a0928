package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/history"
	"github.com/quantflow/tradeengine/pkg/types"
)

// historyWith seeds snapshots at 5m intervals and returns the service
// with the last snapshot's timestamp, the anchor a condition evaluates
// at.
func historyWith(t *testing.T, snapshots ...map[string]types.IndicatorValues) (*history.Service, time.Time) {
	t.Helper()
	svc := history.NewService(50)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var last time.Time
	for i, ind := range snapshots {
		last = base.Add(time.Duration(i) * 5 * time.Minute)
		svc.Append(types.IndicatorSnapshot{
			Symbol:     "BTCUSDT",
			Timeframe:  types.Timeframe5m,
			Timestamp:  last,
			Indicators: ind,
		})
	}
	return svc, last
}

func testEnv(h *history.Service, anchor time.Time) Env {
	return Env{History: h, Symbol: "BTCUSDT", Timeframe: types.Timeframe5m, Timestamp: anchor}
}

func TestCompare_Threshold(t *testing.T) {
	h, at := historyWith(t, map[string]types.IndicatorValues{
		"RSI": {types.FieldValue: 25},
	})
	env := testEnv(h, at)

	oversold := Compare{Left: Operand{Indicator: "RSI"}, Op: OpLT, Threshold: 30}
	ok, err := oversold.Evaluate(env)
	require.NoError(t, err)
	assert.True(t, ok)

	overbought := Compare{Left: Operand{Indicator: "RSI"}, Op: OpGT, Threshold: 70}
	ok, err = overbought.Evaluate(env)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCrossover_FiresOnCross(t *testing.T) {
	h, at := historyWith(t,
		map[string]types.IndicatorValues{"MACD": {"macd": -0.5, "signal": 0.1}},
		map[string]types.IndicatorValues{"MACD": {"macd": 0.4, "signal": 0.2}},
	)
	env := testEnv(h, at)

	cross := Crossover{
		Fast:  Operand{Indicator: "MACD", Field: "macd"},
		Slow:  Operand{Indicator: "MACD", Field: "signal"},
		Above: true,
	}
	ok, err := cross.Evaluate(env)
	require.NoError(t, err)
	assert.True(t, ok)

	// already above on both candles: no new cross
	h2, at2 := historyWith(t,
		map[string]types.IndicatorValues{"MACD": {"macd": 0.5, "signal": 0.1}},
		map[string]types.IndicatorValues{"MACD": {"macd": 0.6, "signal": 0.2}},
	)
	ok, err = cross.Evaluate(testEnv(h2, at2))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCombiner_AndOrNot(t *testing.T) {
	h, at := historyWith(t, map[string]types.IndicatorValues{
		"RSI":   {types.FieldValue: 25},
		"STOCH": {"k": 15, "d": 20},
	})
	env := testEnv(h, at)

	rsiLow := Compare{Left: Operand{Indicator: "RSI"}, Op: OpLT, Threshold: 30}
	stochLow := Compare{Left: Operand{Indicator: "STOCH", Field: "k"}, Op: OpLT, Threshold: 20}
	rsiHigh := Compare{Left: Operand{Indicator: "RSI"}, Op: OpGT, Threshold: 70}

	ok, err := And{rsiLow, stochLow}.Evaluate(env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Or{rsiHigh, stochLow}.Evaluate(env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Not{Inner: rsiHigh}.Evaluate(env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = And{rsiLow, rsiHigh}.Evaluate(env)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCondition_MissingIndicator(t *testing.T) {
	h, at := historyWith(t, map[string]types.IndicatorValues{
		"RSI": {types.FieldValue: 25},
	})
	env := testEnv(h, at)

	cond := Compare{Left: Operand{Indicator: "ADX"}, Op: OpGT, Threshold: 20}
	_, err := cond.Evaluate(env)
	assert.ErrorIs(t, err, apperrors.ErrMissingIndicator)
}

func TestCondition_AnchoredAtOlderCandle(t *testing.T) {
	h, last := historyWith(t,
		map[string]types.IndicatorValues{"RSI": {types.FieldValue: 25}},
		map[string]types.IndicatorValues{"RSI": {types.FieldValue: 75}},
	)
	oversold := Compare{Left: Operand{Indicator: "RSI"}, Op: OpLT, Threshold: 30}

	// Anchored at the first candle, the condition reads 25, not the
	// newer 75.
	ok, err := oversold.Evaluate(testEnv(h, last.Add(-5*time.Minute)))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = oversold.Evaluate(testEnv(h, last))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCrossover_InsufficientHistory(t *testing.T) {
	// only one snapshot: the previous-candle lookup must fail, not default
	h, at := historyWith(t, map[string]types.IndicatorValues{
		"MACD": {"macd": 0.4, "signal": 0.2},
	})

	cross := Crossover{
		Fast:  Operand{Indicator: "MACD", Field: "macd"},
		Slow:  Operand{Indicator: "MACD", Field: "signal"},
		Above: true,
	}
	_, err := cross.Evaluate(testEnv(h, at))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)
}
