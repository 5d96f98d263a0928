package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/pkg/types"
)

// FillListener receives fills the paper broker produces. The ctx is the
// submitting call's ctx, so listeners publishing back into the pipeline
// keep its delivery semantics.
type FillListener func(ctx context.Context, fill types.Fill)

// Paper simulates a broker in-process. Orders fill at the current mark
// price, split into FillChunks partial executions so downstream handlers
// see the same fill stream a live venue would produce.
type Paper struct {
	mu         sync.Mutex
	marks      map[types.Symbol]decimal.Decimal
	open       map[string]*execution.Order // by client order id
	positions  map[types.Symbol]*types.Position
	cash       decimal.Decimal
	currency   string
	commission decimal.Decimal // rate applied to notional
	listener   FillListener
	nextFill   int
	nextOrder  int

	// FillChunks splits each order into this many equal partial fills.
	FillChunks int
}

// NewPaper creates a paper broker with the given starting cash.
func NewPaper(startingCash decimal.Decimal, currency string, commissionRate decimal.Decimal) *Paper {
	return &Paper{
		marks:      make(map[types.Symbol]decimal.Decimal),
		open:       make(map[string]*execution.Order),
		positions:  make(map[types.Symbol]*types.Position),
		cash:       startingCash,
		currency:   currency,
		commission: commissionRate,
		FillChunks: 1,
	}
}

// OnFill registers the listener invoked for every simulated fill.
func (p *Paper) OnFill(fn FillListener) { p.listener = fn }

// SetMarkPrice sets the price orders for symbol execute at.
func (p *Paper) SetMarkPrice(symbol types.Symbol, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = price
}

func (p *Paper) AccountInfo(_ context.Context) (types.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	for sym, pos := range p.positions {
		if mark, ok := p.marks[sym]; ok {
			equity = equity.Add(pos.Quantity.Decimal().Mul(mark))
		}
	}
	return types.AccountInfo{
		Cash:        types.Money{Amount: p.cash, Currency: p.currency},
		Equity:      types.Money{Amount: equity, Currency: p.currency},
		BuyingPower: types.Money{Amount: p.cash, Currency: p.currency},
	}, nil
}

func (p *Paper) Positions(_ context.Context) ([]types.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]types.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// SubmitOrder fills the order immediately at the mark price. Resubmitting
// a known client order id returns the original acknowledgement.
func (p *Paper) SubmitOrder(ctx context.Context, req execution.OrderRequest) (SubmitResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o, ok := p.open[req.ClientOrderID]; ok {
		return SubmitResult{
			OrderID:       o.BrokerOrderID,
			ClientOrderID: o.ClientOrderID,
			SubmittedAt:   o.UpdatedAt,
		}, nil
	}

	mark, ok := p.marks[req.Symbol]
	if !ok || mark.IsZero() {
		return SubmitResult{}, apperrors.Transient(
			fmt.Errorf("%w: no mark price for %s", apperrors.ErrBrokerUnavailable, req.Symbol),
			"paper_broker", "submit_order")
	}
	price := mark
	if req.Type == types.OrderTypeLimit && !req.LimitPrice.IsZero() {
		price = req.LimitPrice
	}

	now := time.Now().UTC()
	p.nextOrder++
	order := execution.NewOrder(req, now)
	order.MarkSubmitted(fmt.Sprintf("paper-%d", p.nextOrder), now)
	p.open[req.ClientOrderID] = order

	chunks := p.FillChunks
	if chunks < 1 {
		chunks = 1
	}
	chunkQty := req.Quantity.Decimal().Div(decimal.NewFromInt(int64(chunks)))
	for i := 0; i < chunks; i++ {
		qty := chunkQty
		if i == chunks-1 {
			// remainder absorbs division dust
			qty = order.Remaining().Decimal()
		}
		p.applyFill(ctx, order, types.NewQuantity(qty), price, now)
	}

	return SubmitResult{
		OrderID:       order.BrokerOrderID,
		ClientOrderID: order.ClientOrderID,
		SubmittedAt:   now,
	}, nil
}

func (p *Paper) applyFill(ctx context.Context, order *execution.Order, qty types.Quantity, price decimal.Decimal, now time.Time) {
	order.ApplyFill(qty, now)

	signed := qty
	if order.Side == types.SideSell {
		signed = qty.Neg()
	}
	pos, ok := p.positions[order.Symbol]
	if !ok {
		pos = &types.Position{Symbol: order.Symbol}
		p.positions[order.Symbol] = pos
	}
	pos.Quantity = pos.Quantity.Add(signed)
	if pos.Quantity.IsZero() {
		delete(p.positions, order.Symbol)
	}

	notional := qty.Decimal().Mul(price)
	fee := notional.Mul(p.commission)
	if order.Side == types.SideBuy {
		p.cash = p.cash.Sub(notional).Sub(fee)
	} else {
		p.cash = p.cash.Add(notional).Sub(fee)
	}

	p.nextFill++
	fill := types.Fill{
		ID:            fmt.Sprintf("paper-fill-%d", p.nextFill),
		OrderID:       order.BrokerOrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      qty,
		Price:         price,
		Commission:    fee,
		Timestamp:     now,
	}
	if p.listener != nil {
		p.listener(ctx, fill)
	}
}

func (p *Paper) CancelOrder(_ context.Context, _ types.Symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range p.open {
		if o.BrokerOrderID == orderID {
			o.MarkCanceled(time.Now().UTC())
			return nil
		}
	}
	return apperrors.Validation(fmt.Errorf("unknown order %s", orderID), "paper_broker", "cancel_order")
}

func (p *Paper) ListOpenOrders(_ context.Context, symbol types.Symbol) ([]OpenOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]OpenOrder, 0)
	for _, o := range p.open {
		if o.Symbol != symbol || o.Status.IsTerminal() {
			continue
		}
		out = append(out, OpenOrder{
			OrderID:       o.BrokerOrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          o.Side,
			Type:          o.Type,
			Quantity:      o.Quantity,
			FilledQty:     o.FilledQty,
			CreatedAt:     o.CreatedAt,
		})
	}
	return out, nil
}
