package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

// HistoryReader is the lookup surface conditions evaluate against.
// Lookups are anchored at an explicit candle timestamp: snapshots
// appended after the anchor never change what a condition sees.
type HistoryReader interface {
	AsOf(symbol types.Symbol, tf types.Timeframe, anchor time.Time, ago int) (types.IndicatorSnapshot, error)
}

// Env carries everything a condition needs for one evaluation. Evaluation
// is side-effect-free: conditions only read through the env. Timestamp is
// the candle being evaluated; ago offsets count back from it.
type Env struct {
	History   HistoryReader
	Symbol    types.Symbol
	Timeframe types.Timeframe
	Timestamp time.Time
}

// Operand addresses one indicator field, optionally some candles back.
type Operand struct {
	Indicator string
	Field     string // empty means the scalar "value" field
	Ago       int    // 0 is the current candle
}

func (o Operand) field() string {
	if o.Field == "" {
		return types.FieldValue
	}
	return o.Field
}

func (o Operand) String() string {
	s := o.Indicator
	if o.Field != "" {
		s += "." + o.Field
	}
	if o.Ago > 0 {
		s += fmt.Sprintf("[-%d]", o.Ago)
	}
	return s
}

// Value resolves an operand against history. A snapshot lacking the
// indicator fails with ErrMissingIndicator; a lookup past the retained
// window fails with ErrInsufficientHistory.
func (e Env) Value(op Operand) (float64, error) {
	snap, err := e.History.AsOf(e.Symbol, e.Timeframe, e.Timestamp, op.Ago)
	if err != nil {
		return 0, err
	}
	v, ok := snap.Value(op.Indicator, op.field())
	if !ok {
		return 0, fmt.Errorf("%w: %s", apperrors.ErrMissingIndicator, op)
	}
	return v, nil
}

// Condition is a boolean predicate over indicator values. Evaluate is
// total given a resolvable env; unevaluable conditions return typed errors
// the executor treats as "not met".
type Condition interface {
	Evaluate(env Env) (bool, error)
	Describe() string
}

// CompareOp is a comparison operator for threshold conditions.
type CompareOp string

const (
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
)

// Compare tests one indicator value against a constant threshold.
type Compare struct {
	Left      Operand
	Op        CompareOp
	Threshold float64
}

func (c Compare) Evaluate(env Env) (bool, error) {
	v, err := env.Value(c.Left)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpGT:
		return v > c.Threshold, nil
	case OpGE:
		return v >= c.Threshold, nil
	case OpLT:
		return v < c.Threshold, nil
	case OpLE:
		return v <= c.Threshold, nil
	}
	return false, fmt.Errorf("unknown compare op %q", c.Op)
}

func (c Compare) Describe() string {
	return fmt.Sprintf("%s %s %g", c.Left, c.Op, c.Threshold)
}

// Crossover fires when the fast series crosses the slow series between the
// previous and the current candle.
type Crossover struct {
	Fast  Operand
	Slow  Operand
	Above bool // true: fast crossed above slow; false: crossed below
}

func (c Crossover) Evaluate(env Env) (bool, error) {
	prev := func(op Operand) Operand {
		op.Ago++
		return op
	}

	fastNow, err := env.Value(c.Fast)
	if err != nil {
		return false, err
	}
	slowNow, err := env.Value(c.Slow)
	if err != nil {
		return false, err
	}
	fastPrev, err := env.Value(prev(c.Fast))
	if err != nil {
		return false, err
	}
	slowPrev, err := env.Value(prev(c.Slow))
	if err != nil {
		return false, err
	}

	if c.Above {
		return fastPrev <= slowPrev && fastNow > slowNow, nil
	}
	return fastPrev >= slowPrev && fastNow < slowNow, nil
}

func (c Crossover) Describe() string {
	dir := "crosses above"
	if !c.Above {
		dir = "crosses below"
	}
	return fmt.Sprintf("%s %s %s", c.Fast, dir, c.Slow)
}

// And is satisfied when every child condition is satisfied.
type And []Condition

func (a And) Evaluate(env Env) (bool, error) {
	for _, c := range a {
		ok, err := c.Evaluate(env)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a And) Describe() string { return joinDescriptions([]Condition(a), " AND ") }

// Or is satisfied when at least one child condition is satisfied.
type Or []Condition

func (o Or) Evaluate(env Env) (bool, error) {
	for _, c := range o {
		ok, err := c.Evaluate(env)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (o Or) Describe() string { return joinDescriptions([]Condition(o), " OR ") }

// Not inverts its child condition.
type Not struct {
	Inner Condition
}

func (n Not) Evaluate(env Env) (bool, error) {
	ok, err := n.Inner.Evaluate(env)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n Not) Describe() string { return "NOT (" + n.Inner.Describe() + ")" }

func joinDescriptions(conds []Condition, sep string) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = "(" + c.Describe() + ")"
	}
	return strings.Join(parts, sep)
}
