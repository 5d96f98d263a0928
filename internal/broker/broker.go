// Package broker abstracts order routing. The pipeline only depends on
// the Broker interface; implementations route to an exchange or simulate
// fills in-process.
package broker

import (
	"context"
	"time"

	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/pkg/types"
)

// OpenOrder is a broker-side view of a live order.
type OpenOrder struct {
	OrderID       string
	ClientOrderID string
	Symbol        types.Symbol
	Side          types.Side
	Type          types.OrderType
	Quantity      types.Quantity
	FilledQty     types.Quantity
	CreatedAt     time.Time
}

// SubmitResult is the broker acknowledgement of an order placement.
type SubmitResult struct {
	OrderID       string
	ClientOrderID string
	SubmittedAt   time.Time
}

// Broker places and manages orders and exposes the account state risk
// checks read. Implementations must treat a resubmitted client order id
// as the already-placed order, not a new one.
type Broker interface {
	AccountInfo(ctx context.Context) (types.AccountInfo, error)
	Positions(ctx context.Context) ([]types.Position, error)
	SubmitOrder(ctx context.Context, req execution.OrderRequest) (SubmitResult, error)
	CancelOrder(ctx context.Context, symbol types.Symbol, orderID string) error
	ListOpenOrders(ctx context.Context, symbol types.Symbol) ([]OpenOrder, error)
}
