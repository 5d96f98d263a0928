package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

func snapshotAt(minute int, rsi float64) types.IndicatorSnapshot {
	return types.IndicatorSnapshot{
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe5m,
		Timestamp: time.Date(2025, 6, 1, 0, minute, 0, 0, time.UTC),
		Indicators: map[string]types.IndicatorValues{
			"RSI": {types.FieldValue: rsi},
		},
	}
}

func TestService_AtLooksBack(t *testing.T) {
	svc := NewService(10)
	svc.Append(snapshotAt(0, 40))
	svc.Append(snapshotAt(5, 50))
	svc.Append(snapshotAt(10, 60))

	latest, err := svc.Latest("BTCUSDT", types.Timeframe5m)
	require.NoError(t, err)
	assert.Equal(t, 60.0, latest.Indicators["RSI"][types.FieldValue])

	two, err := svc.At("BTCUSDT", types.Timeframe5m, 2)
	require.NoError(t, err)
	assert.Equal(t, 40.0, two.Indicators["RSI"][types.FieldValue])
}

func TestService_OutOfRangeFails(t *testing.T) {
	svc := NewService(10)
	svc.Append(snapshotAt(0, 40))

	_, err := svc.At("BTCUSDT", types.Timeframe5m, 1)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)

	_, err = svc.Latest("ETHUSDT", types.Timeframe5m)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)
}

func TestService_AsOfAnchorsAtTimestamp(t *testing.T) {
	svc := NewService(10)
	svc.Append(snapshotAt(0, 40))
	svc.Append(snapshotAt(5, 50))
	svc.Append(snapshotAt(10, 60))

	anchor := time.Date(2025, 6, 1, 0, 5, 0, 0, time.UTC)

	at, err := svc.AsOf("BTCUSDT", types.Timeframe5m, anchor, 0)
	require.NoError(t, err)
	assert.Equal(t, 50.0, at.Indicators["RSI"][types.FieldValue])

	prev, err := svc.AsOf("BTCUSDT", types.Timeframe5m, anchor, 1)
	require.NoError(t, err)
	assert.Equal(t, 40.0, prev.Indicators["RSI"][types.FieldValue])

	// no candle before the series start
	_, err = svc.AsOf("BTCUSDT", types.Timeframe5m, anchor, 2)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)

	// unknown anchor: never default to the newest entry
	_, err = svc.AsOf("BTCUSDT", types.Timeframe5m, anchor.Add(time.Minute), 0)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientHistory)
}

func TestService_FIFOEviction(t *testing.T) {
	svc := NewService(3)
	for i := 0; i < 5; i++ {
		svc.Append(snapshotAt(i*5, float64(i)))
	}

	assert.Equal(t, 3, svc.Len("BTCUSDT", types.Timeframe5m))

	// oldest retained is the third appended
	oldest, err := svc.At("BTCUSDT", types.Timeframe5m, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, oldest.Indicators["RSI"][types.FieldValue])
}

func TestService_ReappendOverwrites(t *testing.T) {
	svc := NewService(10)
	svc.Append(snapshotAt(0, 40))
	svc.Append(snapshotAt(0, 40)) // redelivery

	assert.Equal(t, 1, svc.Len("BTCUSDT", types.Timeframe5m))
}

func TestService_OutOfOrderInsert(t *testing.T) {
	svc := NewService(10)
	svc.Append(snapshotAt(10, 60))
	svc.Append(snapshotAt(0, 40)) // late arrival

	latest, err := svc.Latest("BTCUSDT", types.Timeframe5m)
	require.NoError(t, err)
	assert.Equal(t, 60.0, latest.Indicators["RSI"][types.FieldValue])
	assert.Equal(t, 2, svc.Len("BTCUSDT", types.Timeframe5m))
}
