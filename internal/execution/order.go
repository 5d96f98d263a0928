package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/pkg/types"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	StatusNew             OrderStatus = "New"
	StatusSubmitted       OrderStatus = "Submitted"
	StatusPartiallyFilled OrderStatus = "PartiallyFilled"
	StatusFilled          OrderStatus = "Filled"
	StatusCanceled        OrderStatus = "Canceled"
)

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled
}

// Order tracks one order through its lifecycle:
//
//	New -> Submitted -> (PartiallyFilled ...) -> Filled
//	New -> Submitted -> Canceled
//
// Transitions attempted from a terminal state are no-ops, never errors,
// so redelivered fill and cancel events are safe to replay.
type Order struct {
	ClientOrderID string          `json:"client_order_id"`
	BrokerOrderID string          `json:"broker_order_id"`
	Symbol        types.Symbol    `json:"symbol"`
	Side          types.Side      `json:"side"`
	Type          types.OrderType `json:"type"`
	Quantity      types.Quantity  `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price,omitempty"`
	FilledQty     types.Quantity  `json:"filled_qty"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// MarkSubmitted records broker acknowledgement. Only a New order can move
// to Submitted; anything else is a no-op.
func (o *Order) MarkSubmitted(brokerOrderID string, at time.Time) bool {
	if o.Status != StatusNew {
		return false
	}
	o.BrokerOrderID = brokerOrderID
	o.Status = StatusSubmitted
	o.UpdatedAt = at
	return true
}

// ApplyFill accumulates executed quantity. The order moves to
// PartiallyFilled while quantity remains, and to Filled once the filled
// quantity reaches the order quantity. Fills on terminal orders are
// ignored.
func (o *Order) ApplyFill(qty types.Quantity, at time.Time) bool {
	if o.Status.IsTerminal() || o.Status == StatusNew {
		return false
	}

	o.FilledQty = o.FilledQty.Add(qty)
	if o.FilledQty.Decimal().GreaterThanOrEqual(o.Quantity.Decimal()) {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedAt = at
	return true
}

// MarkCanceled moves a non-terminal order to Canceled. Canceling a
// terminal order is a no-op.
func (o *Order) MarkCanceled(at time.Time) bool {
	if o.Status.IsTerminal() {
		return false
	}
	o.Status = StatusCanceled
	o.UpdatedAt = at
	return true
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() types.Quantity {
	return o.Quantity.Sub(o.FilledQty)
}
