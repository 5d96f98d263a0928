package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

// quantityScale is the number of decimal places an order quantity is
// rounded down to. Rounding down ensures a sized order never exceeds the
// notional the percent implies.
const quantityScale = 8

// orderIDNamespace makes client order IDs deterministic per decision, so
// a replayed approval produces the same order instead of a second one.
var orderIDNamespace = uuid.MustParse("7a1f3c5e-9b2a-4d6f-8e01-c4b7d2a95310")

// OrderRequest is what the policy asks a broker to execute.
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	Symbol        types.Symbol    `json:"symbol"`
	Side          types.Side      `json:"side"`
	Type          types.OrderType `json:"type"`
	Quantity      types.Quantity  `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price,omitempty"`
	StopLoss      decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit    decimal.Decimal `json:"take_profit,omitempty"`
	DecisionID    string          `json:"decision_id"`
}

// Policy translates approved decisions into executable orders. It owns
// sizing only; risk acceptance has already happened upstream.
type Policy struct {
	// UseLimitOrders places limit orders at the decision's reference
	// price instead of market orders.
	UseLimitOrders bool
}

// BuildOrder sizes an approved decision against current account state and
// the latest trade price. Percent sizing converts buying power into
// quantity at the reference price; sells and reduces size against the
// open position instead. A decision that resolves to zero quantity is a
// validation error, not an order.
func (p *Policy) BuildOrder(decision types.TradeDecision, account types.AccountInfo, position *types.Position, price decimal.Decimal) (OrderRequest, error) {
	if !decision.Action.IsValid() || decision.Action == types.ActionHold {
		return OrderRequest{}, apperrors.Validation(fmt.Errorf("action %q is not executable", decision.Action), "execution", "build_order")
	}
	if price.IsZero() || price.IsNegative() {
		return OrderRequest{}, apperrors.Validation(fmt.Errorf("reference price %s is not positive", price), "execution", "build_order")
	}

	qty, err := p.sizeQuantity(decision, account, position, price)
	if err != nil {
		return OrderRequest{}, err
	}

	req := OrderRequest{
		ClientOrderID: ClientOrderID(decision.ID),
		Symbol:        decision.Symbol,
		Side:          sideFor(decision.Action),
		Type:          types.OrderTypeMarket,
		Quantity:      qty,
		StopLoss:      decision.StopLoss,
		TakeProfit:    decision.TakeProfit,
		DecisionID:    decision.ID,
	}
	if p.UseLimitOrders {
		req.Type = types.OrderTypeLimit
		req.LimitPrice = price
	}
	return req, nil
}

func (p *Policy) sizeQuantity(decision types.TradeDecision, account types.AccountInfo, position *types.Position, price decimal.Decimal) (types.Quantity, error) {
	// An explicit quantity wins over percent sizing.
	if !decision.Quantity.IsZero() {
		if decision.Quantity.IsNegative() {
			return types.Quantity{}, apperrors.Validation(fmt.Errorf("explicit quantity %s is negative", decision.Quantity), "execution", "build_order")
		}
		return decision.Quantity, nil
	}

	pct := decision.QuantityPercent
	if pct.IsZero() || pct.IsNegative() {
		return types.Quantity{}, apperrors.Validation(fmt.Errorf("decision %s carries neither quantity nor a positive quantity percent", decision.ID), "execution", "build_order")
	}
	fraction := pct.Div(decimal.NewFromInt(100))

	var raw decimal.Decimal
	switch decision.Action {
	case types.ActionBuy:
		raw = account.BuyingPower.Amount.Mul(fraction).Div(price)
	case types.ActionSell, types.ActionReduce:
		if position == nil || !position.Quantity.IsPositive() {
			return types.Quantity{}, apperrors.Validation(fmt.Errorf("no open position in %s to %s", decision.Symbol, decision.Action), "execution", "build_order")
		}
		raw = position.Quantity.Decimal().Mul(fraction)
	}

	qty := types.NewQuantity(raw.RoundDown(quantityScale))
	if !qty.IsPositive() {
		return types.Quantity{}, apperrors.Validation(fmt.Errorf("sized quantity %s is not positive", qty), "execution", "build_order")
	}
	return qty, nil
}

// ClientOrderID derives the idempotent client order ID for a decision.
func ClientOrderID(decisionID string) string {
	return uuid.NewSHA1(orderIDNamespace, []byte(decisionID)).String()
}

// NewOrder creates the tracked Order for a request before submission.
func NewOrder(req OrderRequest, at time.Time) *Order {
	return &Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		Status:        StatusNew,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func sideFor(action types.Action) types.Side {
	if action == types.ActionBuy {
		return types.SideBuy
	}
	return types.SideSell
}
