package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBollinger_BandsAroundMiddle(t *testing.T) {
	closes := []float64{
		100, 102, 99, 104, 101, 106, 98, 103, 107, 100,
		105, 99, 108, 102, 104, 110, 101, 106, 103, 109,
	}

	bb := NewBollinger(20, 2.0)
	vals, err := bb.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.InDelta(t, sma(closes), vals[BollingerFieldMiddle], 1e-9)
	assert.Greater(t, vals[BollingerFieldUpper], vals[BollingerFieldMiddle])
	assert.Less(t, vals[BollingerFieldLower], vals[BollingerFieldMiddle])

	// The two bands are symmetric about the middle.
	assert.InDelta(t,
		vals[BollingerFieldUpper]-vals[BollingerFieldMiddle],
		vals[BollingerFieldMiddle]-vals[BollingerFieldLower], 1e-9)
}

func TestBollinger_PercentBLocatesClose(t *testing.T) {
	closes := []float64{
		100, 102, 99, 104, 101, 106, 98, 103, 107, 100,
		105, 99, 108, 102, 104, 110, 101, 106, 103, 109,
	}

	bb := NewBollinger(20, 2.0)
	vals, err := bb.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	want := (closes[len(closes)-1] - vals[BollingerFieldLower]) /
		(vals[BollingerFieldUpper] - vals[BollingerFieldLower])
	assert.InDelta(t, want, vals[BollingerFieldPercentB], 1e-9)
}

func TestBollinger_FlatWindowCollapses(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}

	bb := NewBollinger(20, 2.0)
	vals, err := bb.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.Equal(t, 100.0, vals[BollingerFieldUpper])
	assert.Equal(t, 100.0, vals[BollingerFieldLower])
	assert.Equal(t, 0.5, vals[BollingerFieldPercentB])
}

func TestBollinger_KnownSigma(t *testing.T) {
	// Alternating 98/102 around 100: population stddev is exactly 2.
	closes := make([]float64, 20)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 98
		} else {
			closes[i] = 102
		}
	}

	bb := NewBollinger(20, 2.0)
	vals, err := bb.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.InDelta(t, 100.0, vals[BollingerFieldMiddle], 1e-9)
	assert.InDelta(t, 104.0, vals[BollingerFieldUpper], 1e-9)
	assert.InDelta(t, 96.0, vals[BollingerFieldLower], 1e-9)
	assert.False(t, math.IsNaN(vals[BollingerFieldPercentB]))
}
