package strategy

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

// Proposal is a strategy's suggested trade for one candle, prior to
// decision-engine reconciliation and risk validation.
type Proposal struct {
	StrategyID      string
	StrategyName    string
	Symbol          types.Symbol
	Timeframe       types.Timeframe
	Timestamp       time.Time
	Action          types.Action
	QuantityPercent decimal.Decimal
	StopLoss        decimal.Decimal // suggested price, zero when unset
	TakeProfit      decimal.Decimal
	Confidence      float64
	Rationale       string
}

// Executor evaluates enabled strategies against the latest snapshot and
// emits one proposal per firing strategy. Reconciling conflicting
// proposals is the decision engine's job, not the executor's.
type Executor struct {
	store   *Store
	history HistoryReader
	log     *logrus.Logger
}

// NewExecutor creates a strategy executor.
func NewExecutor(store *Store, history HistoryReader, log *logrus.Logger) *Executor {
	return &Executor{store: store, history: history, log: log}
}

// Evaluate runs every enabled strategy for the snapshot's lineage.
// Conditions that cannot be evaluated (missing indicator, not enough
// history yet) count as not met; anything else is a defect and is logged.
func (e *Executor) Evaluate(snap types.IndicatorSnapshot) []Proposal {
	env := Env{History: e.history, Symbol: snap.Symbol, Timeframe: snap.Timeframe, Timestamp: snap.Timestamp}

	var proposals []Proposal
	for _, st := range e.store.Enabled(snap.Symbol, snap.Timeframe) {
		fired, err := st.Condition.Evaluate(env)
		if err != nil {
			if apperrors.IsValidation(err) {
				e.log.WithFields(logrus.Fields{
					"strategy": st.Name,
					"symbol":   snap.Symbol,
				}).Debugf("condition not evaluable: %v", err)
				continue
			}
			e.log.WithField("strategy", st.Name).Errorf("condition evaluation failed: %v", err)
			continue
		}
		if !fired {
			continue
		}

		proposals = append(proposals, e.instantiate(st, snap))
	}
	return proposals
}

func (e *Executor) instantiate(st *Strategy, snap types.IndicatorSnapshot) Proposal {
	p := Proposal{
		StrategyID:      st.ID,
		StrategyName:    st.Name,
		Symbol:          snap.Symbol,
		Timeframe:       snap.Timeframe,
		Timestamp:       snap.Timestamp,
		Action:          st.Template.Action,
		QuantityPercent: st.Template.QuantityPercent,
		Confidence:      st.Template.Confidence,
		Rationale:       st.Name + ": " + st.Condition.Describe(),
	}

	close := decimal.NewFromFloat(snap.Close)
	hundred := decimal.NewFromInt(100)
	if !st.Template.StopLossPct.IsZero() && close.IsPositive() {
		offset := close.Mul(st.Template.StopLossPct).Div(hundred)
		if st.Template.Action == types.ActionSell {
			p.StopLoss = close.Add(offset)
		} else {
			p.StopLoss = close.Sub(offset)
		}
	}
	if !st.Template.TakeProfitPct.IsZero() && close.IsPositive() {
		offset := close.Mul(st.Template.TakeProfitPct).Div(hundred)
		if st.Template.Action == types.ActionSell {
			p.TakeProfit = close.Sub(offset)
		} else {
			p.TakeProfit = close.Add(offset)
		}
	}
	return p
}
