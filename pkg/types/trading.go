package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is a trade recommendation produced by the decision engine.
type Action string

const (
	ActionBuy    Action = "BUY"
	ActionSell   Action = "SELL"
	ActionHold   Action = "HOLD"
	ActionReduce Action = "REDUCE"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold, ActionReduce:
		return true
	}
	return false
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "Market"
	OrderTypeLimit  OrderType = "Limit"
)

// TradeDecision is the outcome of one decision-engine evaluation of one
// candle. At most one decision exists per idempotency key.
type TradeDecision struct {
	ID              string          `json:"id"`
	Symbol          Symbol          `json:"symbol"`
	Timeframe       Timeframe       `json:"timeframe"`
	Timestamp       time.Time       `json:"timestamp"` // candle close being decided on
	Action          Action          `json:"action"`
	Quantity        Quantity        `json:"quantity,omitempty"`
	QuantityPercent decimal.Decimal `json:"quantity_percent,omitempty"`
	StopLoss        decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit      decimal.Decimal `json:"take_profit,omitempty"`
	Confidence      float64         `json:"confidence"`
	Rationale       string          `json:"rationale"`
	Engine          string          `json:"engine"`
}

// Key returns the decision's idempotency key: one decision per candle per
// engine identity.
func (d TradeDecision) Key() string {
	return fmt.Sprintf("%s|%s|%d|%s", d.Symbol, d.Timeframe, d.Timestamp.Unix(), d.Engine)
}

// Fill is a confirmation that all or part of an order executed. Append-only;
// one order may accumulate several partial fills.
type Fill struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        Symbol          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      Quantity        `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Commission    decimal.Decimal `json:"commission"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Position is the net holding in one symbol, derived from the fill stream.
type Position struct {
	Symbol        Symbol          `json:"symbol"`
	Quantity      Quantity        `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
}

// AccountInfo is the derived account state read by risk checks and sizing.
type AccountInfo struct {
	Cash        Money `json:"cash"`
	Equity      Money `json:"equity"`
	BuyingPower Money `json:"buying_power"`
}
