package decision

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/strategy"
	"github.com/quantflow/tradeengine/pkg/types"
)

func validSnapshot() types.IndicatorSnapshot {
	return types.IndicatorSnapshot{
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe5m,
		Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Close:     50000,
		Indicators: map[string]types.IndicatorValues{
			"RSI": {types.FieldValue: 25},
		},
	}
}

func proposal(action types.Action, confidence float64, name string) strategy.Proposal {
	return strategy.Proposal{
		StrategyID:      name,
		StrategyName:    name,
		Symbol:          "BTCUSDT",
		Timeframe:       types.Timeframe5m,
		Action:          action,
		QuantityPercent: decimal.NewFromInt(10),
		Confidence:      confidence,
		Rationale:       name + " fired",
	}
}

func TestDeterministic_NoProposalsIsHold(t *testing.T) {
	eng := NewDeterministic(ConflictHighestConfidence)

	d, err := eng.Decide(context.Background(), validSnapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, types.ActionHold, d.Action)
	assert.Equal(t, "deterministic", d.Engine)
	assert.GreaterOrEqual(t, d.Confidence, 0.0)
	assert.LessOrEqual(t, d.Confidence, 1.0)
}

func TestDeterministic_HighestConfidenceWins(t *testing.T) {
	eng := NewDeterministic(ConflictHighestConfidence)

	d, err := eng.Decide(context.Background(), validSnapshot(), []strategy.Proposal{
		proposal(types.ActionBuy, 0.6, "a"),
		proposal(types.ActionSell, 0.9, "b"),
	})
	require.NoError(t, err)

	assert.Equal(t, types.ActionSell, d.Action)
}

func TestDeterministic_FirstStrategyPolicy(t *testing.T) {
	eng := NewDeterministic(ConflictFirstStrategy)

	d, err := eng.Decide(context.Background(), validSnapshot(), []strategy.Proposal{
		proposal(types.ActionBuy, 0.6, "a"),
		proposal(types.ActionSell, 0.9, "b"),
	})
	require.NoError(t, err)

	assert.Equal(t, types.ActionBuy, d.Action)
}

func TestDeterministic_AgreementRaisesConfidence(t *testing.T) {
	eng := NewDeterministic(ConflictHighestConfidence)

	split, err := eng.Decide(context.Background(), validSnapshot(), []strategy.Proposal{
		proposal(types.ActionBuy, 0.8, "a"),
		proposal(types.ActionSell, 0.5, "b"),
	})
	require.NoError(t, err)

	unanimous, err := eng.Decide(context.Background(), validSnapshot(), []strategy.Proposal{
		proposal(types.ActionBuy, 0.8, "a"),
		proposal(types.ActionBuy, 0.5, "b"),
	})
	require.NoError(t, err)

	assert.Greater(t, unanimous.Confidence, split.Confidence)
}

func TestDeterministic_ConfidenceBounded(t *testing.T) {
	eng := NewDeterministic(ConflictHighestConfidence)

	d, err := eng.Decide(context.Background(), validSnapshot(), []strategy.Proposal{
		proposal(types.ActionBuy, 5.0, "overconfident"),
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, d.Confidence, 1.0)
	assert.GreaterOrEqual(t, d.Confidence, 0.0)
}

func TestDeterministic_InvalidSnapshot(t *testing.T) {
	eng := NewDeterministic(ConflictHighestConfidence)

	_, err := eng.Decide(context.Background(), types.IndicatorSnapshot{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidSnapshot)
}

func TestDeterministic_CarriesProposalSizing(t *testing.T) {
	eng := NewDeterministic(ConflictHighestConfidence)

	p := proposal(types.ActionBuy, 0.7, "a")
	p.StopLoss = decimal.NewFromInt(49000)

	d, err := eng.Decide(context.Background(), validSnapshot(), []strategy.Proposal{p})
	require.NoError(t, err)

	assert.True(t, d.QuantityPercent.Equal(decimal.NewFromInt(10)))
	assert.True(t, d.StopLoss.Equal(decimal.NewFromInt(49000)))
}
