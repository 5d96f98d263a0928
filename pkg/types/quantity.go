package types

import "github.com/shopspring/decimal"

// Quantity is a signed instrument quantity. Positive quantities are long,
// negative quantities are short.
type Quantity struct {
	value decimal.Decimal
}

// NewQuantity creates a Quantity from a decimal value.
func NewQuantity(v decimal.Decimal) Quantity {
	return Quantity{value: v}
}

// NewQuantityFromFloat creates a Quantity from a float64.
func NewQuantityFromFloat(v float64) Quantity {
	return Quantity{value: decimal.NewFromFloat(v)}
}

// NewQuantityFromString parses a Quantity from its decimal string form.
func NewQuantityFromString(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{value: d}, nil
}

// Decimal returns the underlying decimal value.
func (q Quantity) Decimal() decimal.Decimal { return q.value }

// Add returns q + other.
func (q Quantity) Add(other Quantity) Quantity {
	return Quantity{value: q.value.Add(other.value)}
}

// Sub returns q - other.
func (q Quantity) Sub(other Quantity) Quantity {
	return Quantity{value: q.value.Sub(other.value)}
}

// Abs returns the absolute quantity.
func (q Quantity) Abs() Quantity {
	return Quantity{value: q.value.Abs()}
}

// Neg returns the negated quantity.
func (q Quantity) Neg() Quantity {
	return Quantity{value: q.value.Neg()}
}

// IsZero reports whether the quantity is exactly zero.
func (q Quantity) IsZero() bool { return q.value.IsZero() }

// IsPositive reports whether the quantity is above zero.
func (q Quantity) IsPositive() bool { return q.value.IsPositive() }

// IsNegative reports whether the quantity is below zero.
func (q Quantity) IsNegative() bool { return q.value.IsNegative() }

func (q Quantity) String() string { return q.value.String() }

// MarshalJSON encodes the quantity as a JSON number string.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return q.value.MarshalJSON()
}

// UnmarshalJSON decodes the quantity from a JSON number or string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	return q.value.UnmarshalJSON(data)
}
