package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStochastic_CloseAtHighIsHundred(t *testing.T) {
	// strictly rising closes: each close is the highest high of its window
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50 + float64(i)
	}

	stoch := NewStochastic(14, 3)
	vals, err := stoch.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.Equal(t, 100.0, vals[StochasticFieldK])
	assert.Equal(t, 100.0, vals[StochasticFieldD])
}

func TestStochastic_Bounded(t *testing.T) {
	closes := []float64{
		100, 97, 103, 95, 108, 92, 104, 99, 106, 94,
		101, 98, 105, 96, 102, 107, 93, 100, 104, 97,
	}

	stoch := NewStochastic(14, 3)
	vals, err := stoch.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	for _, field := range []string{StochasticFieldK, StochasticFieldD} {
		assert.GreaterOrEqual(t, vals[field], 0.0)
		assert.LessOrEqual(t, vals[field], 100.0)
	}
}

func TestStochastic_FlatRangeMidpoint(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}

	stoch := NewStochastic(14, 3)
	vals, err := stoch.Calculate(candlesFromCloses(closes))
	require.NoError(t, err)

	assert.Equal(t, 50.0, vals[StochasticFieldK])
}
