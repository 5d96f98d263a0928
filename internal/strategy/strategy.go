package strategy

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/quantflow/tradeengine/pkg/types"
)

// ActionTemplate is instantiated into a trade proposal when a strategy's
// condition set is satisfied.
type ActionTemplate struct {
	Action          types.Action
	QuantityPercent decimal.Decimal // of buying power (or position, for REDUCE)
	StopLossPct     decimal.Decimal // distance from entry, percent
	TakeProfitPct   decimal.Decimal
	Confidence      float64
}

// Strategy couples a condition set with an action template for one
// (symbol, timeframe) lineage.
type Strategy struct {
	ID        string
	Name      string
	Symbol    types.Symbol
	Timeframe types.Timeframe
	Enabled   bool
	Deleted   bool
	Condition Condition
	Template  ActionTemplate
}

// Store holds strategies with versioned copy-on-write snapshots. The read
// path (every candle close) takes no lock; updates are rare and replace
// the whole snapshot under a writer mutex.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Value // []*Strategy
}

// NewStore creates an empty strategy store.
func NewStore() *Store {
	s := &Store{}
	s.snapshot.Store([]*Strategy{})
	return s
}

// Put inserts or replaces a strategy by id. Updating a deleted strategy
// fails: deletion is terminal.
func (s *Store) Put(st *Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load().([]*Strategy)
	next := make([]*Strategy, 0, len(cur)+1)
	replaced := false
	for _, existing := range cur {
		if existing.ID == st.ID {
			if existing.Deleted {
				return fmt.Errorf("strategy %s is deleted", st.ID)
			}
			next = append(next, st)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, st)
	}
	s.snapshot.Store(next)
	return nil
}

// SetEnabled toggles a strategy without touching its definition.
// Deleted strategies cannot be re-enabled.
func (s *Store) SetEnabled(id string, enabled bool) error {
	return s.mutate(id, false, func(st Strategy) Strategy {
		st.Enabled = enabled
		return st
	})
}

// Delete marks a strategy deleted. Terminal: the strategy never fires
// again and cannot be updated.
func (s *Store) Delete(id string) error {
	return s.mutate(id, true, func(st Strategy) Strategy {
		st.Deleted = true
		st.Enabled = false
		return st
	})
}

func (s *Store) mutate(id string, allowDeleted bool, fn func(Strategy) Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot.Load().([]*Strategy)
	next := make([]*Strategy, len(cur))
	found := false
	for i, existing := range cur {
		if existing.ID == id {
			if existing.Deleted && !allowDeleted {
				return fmt.Errorf("strategy %s is deleted", id)
			}
			updated := fn(*existing)
			next[i] = &updated
			found = true
			continue
		}
		next[i] = existing
	}
	if !found {
		return fmt.Errorf("strategy %s not found", id)
	}
	s.snapshot.Store(next)
	return nil
}

// Enabled returns the enabled strategies for a lineage. The returned slice
// is a point-in-time snapshot safe to iterate without locking.
func (s *Store) Enabled(symbol types.Symbol, tf types.Timeframe) []*Strategy {
	cur := s.snapshot.Load().([]*Strategy)
	out := make([]*Strategy, 0, len(cur))
	for _, st := range cur {
		if st.Enabled && !st.Deleted && st.Symbol == symbol && st.Timeframe == tf {
			out = append(out, st)
		}
	}
	return out
}

// Get returns a strategy by id.
func (s *Store) Get(id string) (*Strategy, bool) {
	for _, st := range s.snapshot.Load().([]*Strategy) {
		if st.ID == id {
			return st, true
		}
	}
	return nil, false
}
