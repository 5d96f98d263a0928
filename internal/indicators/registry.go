package indicators

import (
	"fmt"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

// Registry maps indicator names to calculators. It is populated during
// process startup and treated as immutable afterwards, so concurrent reads
// need no locking.
type Registry struct {
	calcs map[string]Calculator
	order []string
}

// NewRegistry builds a registry from the given calculators. Duplicate
// names are a wiring bug and panic immediately, before any concurrent use.
func NewRegistry(calcs ...Calculator) *Registry {
	r := &Registry{calcs: make(map[string]Calculator, len(calcs))}
	for _, c := range calcs {
		if _, exists := r.calcs[c.Name()]; exists {
			panic(fmt.Sprintf("indicators: duplicate calculator %q", c.Name()))
		}
		r.calcs[c.Name()] = c
		r.order = append(r.order, c.Name())
	}
	return r
}

// Compute evaluates one registered indicator over the candle window.
func (r *Registry) Compute(name string, candles []types.Candle) (types.IndicatorValues, error) {
	calc, ok := r.calcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownIndicator, name)
	}
	if len(candles) < calc.MinPeriods() {
		return nil, fmt.Errorf("%w: %s needs %d candles, have %d",
			apperrors.ErrInsufficientHistory, name, calc.MinPeriods(), len(candles))
	}
	return calc.Calculate(candles)
}

// ComputeAll evaluates every registered indicator that has enough history.
// Indicators short on history are skipped; the result holds only the ones
// that produced values.
func (r *Registry) ComputeAll(candles []types.Candle) map[string]types.IndicatorValues {
	out := make(map[string]types.IndicatorValues, len(r.calcs))
	for _, name := range r.order {
		calc := r.calcs[name]
		if len(candles) < calc.MinPeriods() {
			continue
		}
		vals, err := calc.Calculate(candles)
		if err != nil {
			continue
		}
		out[name] = vals
	}
	return out
}

// Names returns the registered indicator names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
