// Package portfolio is the authoritative view of cash, equity, buying
// power and positions, updated only by confirmed fills.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/pkg/types"
)

// Snapshot is a point-in-time copy of portfolio state for risk checks and
// reporting.
type Snapshot struct {
	Cash           types.Money
	Equity         types.Money
	BuyingPower    types.Money
	RealizedPnL    decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	Positions      []types.Position
	DayStartEquity decimal.Decimal
	PeakEquity     decimal.Decimal
	UpdatedAt      time.Time
}

// Position returns the position for a symbol, zero-valued when flat.
func (s Snapshot) Position(symbol types.Symbol) types.Position {
	for _, p := range s.Positions {
		if p.Symbol == symbol {
			return p
		}
	}
	return types.Position{Symbol: symbol}
}

// Account converts the snapshot into the account view used by sizing.
func (s Snapshot) Account() types.AccountInfo {
	return types.AccountInfo{Cash: s.Cash, Equity: s.Equity, BuyingPower: s.BuyingPower}
}

type positionState struct {
	quantity decimal.Decimal
	avgCost  decimal.Decimal
	realized decimal.Decimal
}

// Service recomputes positions, cash and equity from the fill stream.
// Fill application is the single logical writer; every fill is applied
// exactly once per fill id under one mutex, so concurrent fills across
// symbols never produce lost updates.
type Service struct {
	mu             sync.Mutex
	currency       string
	cash           decimal.Decimal
	positions      map[types.Symbol]*positionState
	marks          map[types.Symbol]decimal.Decimal
	appliedFills   map[string]struct{}
	realized       decimal.Decimal
	dayStartEquity decimal.Decimal
	peakEquity     decimal.Decimal
	updatedAt      time.Time
}

// NewService creates a portfolio with the given starting cash.
func NewService(startingCash types.Money) *Service {
	return &Service{
		currency:       startingCash.Currency,
		cash:           startingCash.Amount,
		positions:      make(map[types.Symbol]*positionState),
		marks:          make(map[types.Symbol]decimal.Decimal),
		appliedFills:   make(map[string]struct{}),
		dayStartEquity: startingCash.Amount,
		peakEquity:     startingCash.Amount,
		updatedAt:      time.Now(),
	}
}

// ApplyFill applies one confirmed fill. Replays of an already-applied fill
// id are detected and ignored; the returned snapshot and the second return
// report whether state changed.
func (s *Service) ApplyFill(fill types.Fill) (Snapshot, bool, error) {
	if !fill.Quantity.IsPositive() {
		return Snapshot{}, false, fmt.Errorf("fill %s has non-positive quantity %s", fill.ID, fill.Quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.appliedFills[fill.ID]; seen {
		return s.snapshotLocked(), false, nil
	}
	s.appliedFills[fill.ID] = struct{}{}

	qty := fill.Quantity.Decimal()
	notional := qty.Mul(fill.Price)
	pos, ok := s.positions[fill.Symbol]
	if !ok {
		pos = &positionState{}
		s.positions[fill.Symbol] = pos
	}

	switch fill.Side {
	case types.SideBuy:
		total := pos.quantity.Mul(pos.avgCost).Add(notional)
		pos.quantity = pos.quantity.Add(qty)
		if pos.quantity.IsPositive() {
			pos.avgCost = total.Div(pos.quantity)
		}
		s.cash = s.cash.Sub(notional).Sub(fill.Commission)
	case types.SideSell:
		// realized P&L on average-cost basis
		gain := fill.Price.Sub(pos.avgCost).Mul(qty)
		pos.realized = pos.realized.Add(gain)
		s.realized = s.realized.Add(gain)
		pos.quantity = pos.quantity.Sub(qty)
		if pos.quantity.IsZero() {
			pos.avgCost = decimal.Zero
		}
		s.cash = s.cash.Add(notional).Sub(fill.Commission)
	default:
		return Snapshot{}, false, fmt.Errorf("fill %s has unknown side %q", fill.ID, fill.Side)
	}

	s.marks[fill.Symbol] = fill.Price
	s.updatedAt = fill.Timestamp
	if eq := s.equityLocked(); eq.GreaterThan(s.peakEquity) {
		s.peakEquity = eq
	}
	return s.snapshotLocked(), true, nil
}

// SetMarkPrice records the latest externally supplied mark price, used for
// unrealized P&L and equity.
func (s *Service) SetMarkPrice(symbol types.Symbol, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[symbol] = price
	if eq := s.equityLocked(); eq.GreaterThan(s.peakEquity) {
		s.peakEquity = eq
	}
}

// RollDay resets the daily loss baseline to current equity.
func (s *Service) RollDay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dayStartEquity = s.equityLocked()
}

// GetSnapshot returns the current authoritative state.
func (s *Service) GetSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) equityLocked() decimal.Decimal {
	eq := s.cash
	for symbol, pos := range s.positions {
		if pos.quantity.IsZero() {
			continue
		}
		eq = eq.Add(pos.quantity.Mul(s.marks[symbol]))
	}
	return eq
}

func (s *Service) snapshotLocked() Snapshot {
	var unrealized decimal.Decimal
	positions := make([]types.Position, 0, len(s.positions))
	for symbol, pos := range s.positions {
		if pos.quantity.IsZero() {
			continue
		}
		mark := s.marks[symbol]
		upnl := mark.Sub(pos.avgCost).Mul(pos.quantity)
		unrealized = unrealized.Add(upnl)
		positions = append(positions, types.Position{
			Symbol:        symbol,
			Quantity:      types.NewQuantity(pos.quantity),
			AverageCost:   pos.avgCost,
			UnrealizedPnL: upnl,
			RealizedPnL:   pos.realized,
		})
	}

	equity := s.equityLocked()
	return Snapshot{
		Cash:           types.NewMoney(s.cash, s.currency),
		Equity:         types.NewMoney(equity, s.currency),
		BuyingPower:    types.NewMoney(s.cash, s.currency),
		RealizedPnL:    s.realized,
		UnrealizedPnL:  unrealized,
		Positions:      positions,
		DayStartEquity: s.dayStartEquity,
		PeakEquity:     s.peakEquity,
		UpdatedAt:      s.updatedAt,
	}
}
