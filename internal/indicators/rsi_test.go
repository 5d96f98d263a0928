package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/pkg/types"
)

func TestRSI_MonotonicRiseIsCeiling(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := NewRSI(14)
	vals, err := rsi.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.Equal(t, 100.0, vals[types.FieldValue])
}

func TestRSI_MonotonicFallIsFloor(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}

	rsi := NewRSI(14)
	vals, err := rsi.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.Equal(t, 0.0, vals[types.FieldValue])
}

func TestRSI_Bounded(t *testing.T) {
	closes := []float64{
		100, 102, 99, 104, 101, 106, 98, 103, 107, 100,
		105, 99, 108, 102, 104, 110, 101, 106, 103, 109,
	}

	rsi := NewRSI(14)
	vals, err := rsi.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	v := vals[types.FieldValue]
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 100.0)
}

func TestRSI_MinPeriods(t *testing.T) {
	assert.Equal(t, 15, NewRSI(14).MinPeriods())
}
