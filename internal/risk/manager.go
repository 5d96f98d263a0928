// Package risk validates trade decisions against portfolio state and
// configured limits before any order is built.
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/internal/portfolio"
	"github.com/quantflow/tradeengine/pkg/types"
)

// Rule identifies one risk check. Rules are evaluated in the fixed order
// listed here; the first violated rule determines the outcome.
type Rule string

const (
	RuleDuplicateDecision Rule = "duplicate-decision"
	RuleDailyLoss         Rule = "max-daily-loss"
	RuleDrawdown          Rule = "max-drawdown"
	RuleOrderNotional     Rule = "max-order-notional"
	RuleSymbolExposure    Rule = "max-symbol-exposure"
	RuleConcentration     Rule = "max-concentration"
)

// Status is the risk evaluation result kind. Rejections and breaches are
// ordinary data, not errors: they flow downstream as events.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	// StatusBreach is a limit violation requiring operator attention. It
	// does not halt processing of other symbols.
	StatusBreach Status = "BREACH"
)

// Config holds the risk limits, all percentages.
type Config struct {
	MaxOrderNotionalPct  decimal.Decimal // of buying power, per order
	MaxSymbolExposurePct decimal.Decimal // of equity, per symbol after the trade
	MaxConcentrationPct  decimal.Decimal // of equity, largest single position
	MaxDailyLossPct      decimal.Decimal
	MaxDrawdownPct       decimal.Decimal
	// MinAutoApproveConfidence: approved decisions below this confidence
	// additionally require manual operator approval.
	MinAutoApproveConfidence float64
}

// Outcome is the result of one risk evaluation.
type Outcome struct {
	Status           Status
	Rule             Rule // violated rule for REJECTED / BREACH
	Reason           string
	Decision         types.TradeDecision
	RequiresApproval bool
}

// Manager performs deterministic rule evaluation. Evaluations are
// idempotent by decision id: a decision already approved or rejected is
// never re-evaluated.
type Manager struct {
	cfg      Config
	mu       sync.Mutex
	outcomes map[string]Outcome
}

// NewManager creates a risk manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, outcomes: make(map[string]Outcome)}
}

// Evaluate checks a decision against the portfolio snapshot and the
// configured limits. markPrice is the latest known price for the
// decision's symbol.
//
// Rule order: duplicate-decision, max-daily-loss, max-drawdown,
// max-order-notional, max-symbol-exposure, max-concentration.
func (m *Manager) Evaluate(d types.TradeDecision, snap portfolio.Snapshot, markPrice decimal.Decimal) Outcome {
	m.mu.Lock()
	if prior, seen := m.outcomes[d.ID]; seen {
		m.mu.Unlock()
		return prior
	}
	m.mu.Unlock()

	outcome := m.evaluate(d, snap, markPrice)

	m.mu.Lock()
	// first writer wins under concurrent redelivery
	if prior, seen := m.outcomes[d.ID]; seen {
		outcome = prior
	} else {
		m.outcomes[d.ID] = outcome
	}
	m.mu.Unlock()
	return outcome
}

func (m *Manager) evaluate(d types.TradeDecision, snap portfolio.Snapshot, markPrice decimal.Decimal) Outcome {
	if d.Action == types.ActionHold {
		return Outcome{
			Status:   StatusRejected,
			Reason:   "hold decisions are not executable",
			Decision: d,
		}
	}

	hundred := decimal.NewFromInt(100)
	equity := snap.Equity.Amount
	buyingPower := snap.BuyingPower.Amount

	// max-daily-loss
	if snap.DayStartEquity.IsPositive() {
		loss := snap.DayStartEquity.Sub(equity).Div(snap.DayStartEquity).Mul(hundred)
		if loss.GreaterThanOrEqual(m.cfg.MaxDailyLossPct) {
			return m.breach(d, RuleDailyLoss,
				fmt.Sprintf("daily loss %s%% reached limit %s%%", loss.StringFixed(2), m.cfg.MaxDailyLossPct))
		}
	}

	// max-drawdown
	if snap.PeakEquity.IsPositive() {
		dd := snap.PeakEquity.Sub(equity).Div(snap.PeakEquity).Mul(hundred)
		if dd.GreaterThanOrEqual(m.cfg.MaxDrawdownPct) {
			return m.breach(d, RuleDrawdown,
				fmt.Sprintf("drawdown %s%% reached limit %s%%", dd.StringFixed(2), m.cfg.MaxDrawdownPct))
		}
	}

	notional := m.notional(d, snap, markPrice)

	// max-order-notional
	maxNotional := buyingPower.Mul(m.cfg.MaxOrderNotionalPct).Div(hundred)
	if d.Action == types.ActionBuy && notional.GreaterThan(maxNotional) {
		return m.reject(d, RuleOrderNotional,
			fmt.Sprintf("order notional %s exceeds %s (%s%% of buying power)",
				notional.StringFixed(2), maxNotional.StringFixed(2), m.cfg.MaxOrderNotionalPct))
	}

	// max-symbol-exposure
	exposure := snap.Position(d.Symbol).Quantity.Abs().Decimal().Mul(markPrice)
	if d.Action == types.ActionBuy {
		exposure = exposure.Add(notional)
	}
	maxExposure := equity.Mul(m.cfg.MaxSymbolExposurePct).Div(hundred)
	if d.Action == types.ActionBuy && exposure.GreaterThan(maxExposure) {
		return m.reject(d, RuleSymbolExposure,
			fmt.Sprintf("exposure %s on %s exceeds %s (%s%% of equity)",
				exposure.StringFixed(2), d.Symbol, maxExposure.StringFixed(2), m.cfg.MaxSymbolExposurePct))
	}

	// max-concentration
	largest := exposure
	for _, p := range snap.Positions {
		if p.Symbol == d.Symbol {
			continue
		}
		if v := p.Quantity.Abs().Decimal().Mul(markPrice); v.GreaterThan(largest) {
			largest = v
		}
	}
	maxConcentration := equity.Mul(m.cfg.MaxConcentrationPct).Div(hundred)
	if d.Action == types.ActionBuy && largest.GreaterThan(maxConcentration) {
		return m.reject(d, RuleConcentration,
			fmt.Sprintf("largest position %s exceeds %s (%s%% of equity)",
				largest.StringFixed(2), maxConcentration.StringFixed(2), m.cfg.MaxConcentrationPct))
	}

	return Outcome{
		Status:           StatusApproved,
		Decision:         d,
		RequiresApproval: d.Confidence < m.cfg.MinAutoApproveConfidence,
	}
}

// notional estimates the order's quote-currency value before sizing.
func (m *Manager) notional(d types.TradeDecision, snap portfolio.Snapshot, markPrice decimal.Decimal) decimal.Decimal {
	if !d.Quantity.IsZero() {
		return d.Quantity.Abs().Decimal().Mul(markPrice)
	}
	base := snap.BuyingPower.Amount
	if d.Action == types.ActionSell || d.Action == types.ActionReduce {
		base = snap.Position(d.Symbol).Quantity.Abs().Decimal().Mul(markPrice)
	}
	return base.Mul(d.QuantityPercent).Div(decimal.NewFromInt(100))
}

func (m *Manager) reject(d types.TradeDecision, rule Rule, reason string) Outcome {
	return Outcome{Status: StatusRejected, Rule: rule, Reason: reason, Decision: d}
}

func (m *Manager) breach(d types.TradeDecision, rule Rule, reason string) Outcome {
	return Outcome{Status: StatusBreach, Rule: rule, Reason: reason, Decision: d}
}
