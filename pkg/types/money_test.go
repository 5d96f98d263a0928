package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney_AddSameCurrency(t *testing.T) {
	a := NewMoneyFromFloat(100.50, "USD")
	b := NewMoneyFromFloat(49.50, "USD")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, "USD", sum.Currency)

	// commutative
	sum2, err := b.Add(a)
	require.NoError(t, err)
	assert.True(t, sum.Amount.Equal(sum2.Amount))
}

func TestMoney_MismatchedCurrency(t *testing.T) {
	usd := NewMoneyFromFloat(10, "USD")
	eur := NewMoneyFromFloat(10, "EUR")

	_, err := usd.Add(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd.Sub(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = usd.Cmp(eur)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestMoney_SubAndScale(t *testing.T) {
	a := NewMoneyFromFloat(100, "USD")
	b := NewMoneyFromFloat(40, "USD")

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.True(t, diff.Amount.Equal(decimal.NewFromInt(60)))

	scaled := diff.Mul(decimal.NewFromFloat(0.5))
	assert.True(t, scaled.Amount.Equal(decimal.NewFromInt(30)))
}

func TestMoney_AssociativeAdd(t *testing.T) {
	a := NewMoneyFromFloat(0.1, "USD")
	b := NewMoneyFromFloat(0.2, "USD")
	c := NewMoneyFromFloat(0.3, "USD")

	ab, err := a.Add(b)
	require.NoError(t, err)
	left, err := ab.Add(c)
	require.NoError(t, err)

	bc, err := b.Add(c)
	require.NoError(t, err)
	right, err := a.Add(bc)
	require.NoError(t, err)

	// decimal arithmetic has no float drift
	assert.True(t, left.Amount.Equal(right.Amount))
	assert.True(t, left.Amount.Equal(decimal.NewFromFloat(0.6)))
}

func TestQuantity_SignHelpers(t *testing.T) {
	q := NewQuantityFromFloat(-1.5)
	assert.True(t, q.IsNegative())
	assert.False(t, q.IsPositive())
	assert.True(t, q.Abs().IsPositive())
	assert.True(t, q.Add(NewQuantityFromFloat(1.5)).IsZero())
}

func TestTimeframe_Duration(t *testing.T) {
	tf, err := ParseTimeframe("5m")
	require.NoError(t, err)
	assert.Equal(t, 5*60, int(tf.Duration().Seconds()))

	_, err = ParseTimeframe("3w")
	assert.Error(t, err)
}
