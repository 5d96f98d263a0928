package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/pkg/types"
)

// MemoryCandleStore is the in-process CandleStore used by the paper
// pipeline and tests.
type MemoryCandleStore struct {
	mu      sync.RWMutex
	byKey   map[string]types.Candle
	ordered map[string][]types.Candle // lineage -> candles sorted by timestamp
}

func NewMemoryCandleStore() *MemoryCandleStore {
	return &MemoryCandleStore{
		byKey:   make(map[string]types.Candle),
		ordered: make(map[string][]types.Candle),
	}
}

func lineage(symbol types.Symbol, tf types.Timeframe) string {
	return string(symbol) + "|" + string(tf)
}

func (s *MemoryCandleStore) Append(_ context.Context, c types.Candle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Key()
	if _, ok := s.byKey[key]; ok {
		return false, nil
	}
	s.byKey[key] = c

	lk := lineage(c.Symbol, c.Timeframe)
	series := s.ordered[lk]
	i := sort.Search(len(series), func(i int) bool {
		return !series[i].Timestamp.Before(c.Timestamp)
	})
	series = append(series, types.Candle{})
	copy(series[i+1:], series[i:])
	series[i] = c
	s.ordered[lk] = series
	return true, nil
}

func (s *MemoryCandleStore) Get(_ context.Context, key string) (types.Candle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byKey[key]
	return c, ok, nil
}

func (s *MemoryCandleStore) Range(_ context.Context, symbol types.Symbol, tf types.Timeframe, from, to time.Time) ([]types.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.ordered[lineage(symbol, tf)]
	out := make([]types.Candle, 0, len(series))
	for _, c := range series {
		if c.Timestamp.Before(from) || !c.Timestamp.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// MemorySnapshotStore is the in-process SnapshotStore.
type MemorySnapshotStore struct {
	mu    sync.RWMutex
	byKey map[string]types.IndicatorSnapshot
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{byKey: make(map[string]types.IndicatorSnapshot)}
}

func (s *MemorySnapshotStore) Append(_ context.Context, snap types.IndicatorSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snap.Key()
	if _, ok := s.byKey[key]; ok {
		return false, nil
	}
	s.byKey[key] = snap
	return true, nil
}

func (s *MemorySnapshotStore) Get(_ context.Context, key string) (types.IndicatorSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byKey[key]
	return snap, ok, nil
}

// MemoryDecisionStore is the in-process DecisionStore.
type MemoryDecisionStore struct {
	mu    sync.RWMutex
	byKey map[string]types.TradeDecision
}

func NewMemoryDecisionStore() *MemoryDecisionStore {
	return &MemoryDecisionStore{byKey: make(map[string]types.TradeDecision)}
}

func (s *MemoryDecisionStore) Append(_ context.Context, d types.TradeDecision) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.Key()
	if _, ok := s.byKey[key]; ok {
		return false, nil
	}
	s.byKey[key] = d
	return true, nil
}

func (s *MemoryDecisionStore) Get(_ context.Context, key string) (types.TradeDecision, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byKey[key]
	return d, ok, nil
}

func (s *MemoryDecisionStore) Range(_ context.Context, symbol types.Symbol, from, to time.Time) ([]types.TradeDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.TradeDecision, 0)
	for _, d := range s.byKey {
		if d.Symbol != symbol || d.Timestamp.Before(from) || !d.Timestamp.Before(to) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// MemoryFillStore is the in-process FillStore.
type MemoryFillStore struct {
	mu      sync.RWMutex
	byID    map[string]types.Fill
	journal []types.Fill
}

func NewMemoryFillStore() *MemoryFillStore {
	return &MemoryFillStore{byID: make(map[string]types.Fill)}
}

func (s *MemoryFillStore) Append(_ context.Context, f types.Fill) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[f.ID]; ok {
		return false, nil
	}
	s.byID[f.ID] = f
	s.journal = append(s.journal, f)
	return true, nil
}

func (s *MemoryFillStore) Get(_ context.Context, id string) (types.Fill, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.byID[id]
	return f, ok, nil
}

func (s *MemoryFillStore) Range(_ context.Context, from, to time.Time) ([]types.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Fill, 0)
	for _, f := range s.journal {
		if f.Timestamp.Before(from) || !f.Timestamp.Before(to) {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// MemoryOrderStore is the in-process OrderStore.
type MemoryOrderStore struct {
	mu   sync.RWMutex
	byID map[string]execution.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{byID: make(map[string]execution.Order)}
}

func (s *MemoryOrderStore) Append(_ context.Context, o execution.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ClientOrderID]; ok {
		return false, nil
	}
	s.byID[o.ClientOrderID] = o
	return true, nil
}

func (s *MemoryOrderStore) Get(_ context.Context, clientOrderID string) (execution.Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[clientOrderID]
	return o, ok, nil
}
