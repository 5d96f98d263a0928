// Package events defines the wire contracts flowing between pipeline
// stages. Every event carries a correlation id so one candle's journey
// through indicators, decision, risk and execution can be traced end to
// end in logs.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/pkg/types"
)

// Topic names. One topic per event type keeps consumer group offsets
// independent per stage.
const (
	TopicCandleClosed         = "candle.closed"
	TopicFeaturesComputed     = "features.computed"
	TopicIndicatorsCalculated = "indicators.calculated"
	TopicTradeProposed        = "trade.proposed"
	TopicTradeApproved        = "trade.approved"
	TopicTradeRejected        = "trade.rejected"
	TopicRiskBreach           = "risk.breach"
	TopicOrderSubmitted       = "order.submitted"
	TopicOrderCanceled        = "order.canceled"
	TopicOrderFilled          = "order.filled"
	TopicPortfolioUpdated     = "portfolio.updated"
	TopicActionRequired       = "action.required"
	TopicFeedDisconnected     = "feed.disconnected"
)

// CandleClosed announces a finished OHLCV candle.
type CandleClosed struct {
	CorrelationID string          `json:"correlation_id"`
	Symbol        types.Symbol    `json:"symbol"`
	Timeframe     types.Timeframe `json:"timeframe"`
	Candle        types.Candle    `json:"candle"`
}

// FeaturesComputed carries derived per-candle features as exact decimals.
type FeaturesComputed struct {
	CorrelationID string                     `json:"correlation_id"`
	Symbol        types.Symbol               `json:"symbol"`
	Timeframe     types.Timeframe            `json:"timeframe"`
	Timestamp     time.Time                  `json:"timestamp"`
	Features      map[string]decimal.Decimal `json:"features"`
}

// IndicatorsCalculated carries the full indicator snapshot for a candle.
type IndicatorsCalculated struct {
	CorrelationID string                  `json:"correlation_id"`
	Snapshot      types.IndicatorSnapshot `json:"snapshot"`
}

// TradeProposed is a decision awaiting risk evaluation.
type TradeProposed struct {
	CorrelationID string                  `json:"correlation_id"`
	Decision      types.TradeDecision     `json:"decision"`
	Snapshot      types.IndicatorSnapshot `json:"snapshot"`
}

// TradeApproved is a decision cleared by risk checks.
type TradeApproved struct {
	CorrelationID string              `json:"correlation_id"`
	Decision      types.TradeDecision `json:"decision"`
	Approver      string              `json:"approver"`
	Timestamp     time.Time           `json:"timestamp"`
}

// TradeRejected is a decision a risk rule turned away.
type TradeRejected struct {
	CorrelationID string       `json:"correlation_id"`
	DecisionID    string       `json:"decision_id"`
	Symbol        types.Symbol `json:"symbol"`
	Rule          string       `json:"rule"`
	Reason        string       `json:"reason"`
	Timestamp     time.Time    `json:"timestamp"`
}

// RiskBreach reports an account-level limit violation.
type RiskBreach struct {
	CorrelationID string       `json:"correlation_id"`
	Rule          string       `json:"rule"`
	Message       string       `json:"message"`
	Symbol        types.Symbol `json:"symbol,omitempty"`
	DetectedAt    time.Time    `json:"detected_at"`
}

// OrderSubmitted confirms a broker accepted an order.
type OrderSubmitted struct {
	CorrelationID string          `json:"correlation_id"`
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        types.Symbol    `json:"symbol"`
	Side          types.Side      `json:"side"`
	Type          types.OrderType `json:"type"`
	Quantity      types.Quantity  `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price,omitempty"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// OrderCanceled reports an order that will never fill further.
type OrderCanceled struct {
	CorrelationID string       `json:"correlation_id"`
	OrderID       string       `json:"order_id"`
	ClientOrderID string       `json:"client_order_id"`
	Symbol        types.Symbol `json:"symbol"`
	Reason        string       `json:"reason,omitempty"`
	CanceledAt    time.Time    `json:"canceled_at"`
}

// OrderFilled reports one execution, possibly partial.
type OrderFilled struct {
	CorrelationID string     `json:"correlation_id"`
	Fill          types.Fill `json:"fill"`
}

// PortfolioUpdated is the derived account state after applying a fill or
// a mark-price move.
type PortfolioUpdated struct {
	CorrelationID string          `json:"correlation_id"`
	Cash          types.Money     `json:"cash"`
	Equity        types.Money     `json:"equity"`
	BuyingPower   types.Money     `json:"buying_power"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	PositionCount int             `json:"position_count"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ActionRequired asks an operator to approve or discard a decision the
// risk layer would not auto-approve.
type ActionRequired struct {
	CorrelationID string              `json:"correlation_id"`
	Decision      types.TradeDecision `json:"decision"`
	Detail        string              `json:"detail"`
	Timestamp     time.Time           `json:"timestamp"`
}

// FeedDisconnected reports loss of a market data source.
type FeedDisconnected struct {
	CorrelationID  string    `json:"correlation_id"`
	Source         string    `json:"source"`
	Reason         string    `json:"reason"`
	DisconnectedAt time.Time `json:"disconnected_at"`
}
