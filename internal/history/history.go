// Package history maintains bounded, time-ordered indicator snapshot
// series per (symbol, timeframe) for trend and crossover evaluation.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/pkg/types"
)

type lineageKey struct {
	symbol    types.Symbol
	timeframe types.Timeframe
}

// Service stores indicator snapshots ordered by candle timestamp, capped
// at a retention window with oldest-first eviction. The indicator
// computation stage is the single writer; strategy and decision stages
// read concurrently.
type Service struct {
	mu        sync.RWMutex
	retention int
	series    map[lineageKey][]types.IndicatorSnapshot
}

// NewService creates a history service keeping at most retention snapshots
// per (symbol, timeframe).
func NewService(retention int) *Service {
	if retention <= 0 {
		retention = 1
	}
	return &Service{
		retention: retention,
		series:    make(map[lineageKey][]types.IndicatorSnapshot),
	}
}

// Append records a snapshot. Re-appending the same candle timestamp
// overwrites in place, so redelivered computation events do not grow the
// series. Snapshots older than the newest retained entry are inserted in
// order; entries beyond retention are evicted oldest first.
func (s *Service) Append(snap types.IndicatorSnapshot) {
	key := lineageKey{snap.Symbol, snap.Timeframe}

	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[key]
	idx := len(series)
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Timestamp.Equal(snap.Timestamp) {
			series[i] = snap
			return
		}
		if series[i].Timestamp.Before(snap.Timestamp) {
			break
		}
		idx = i
	}

	if idx == len(series) {
		series = append(series, snap)
	} else {
		series = append(series, types.IndicatorSnapshot{})
		copy(series[idx+1:], series[idx:])
		series[idx] = snap
	}

	if len(series) > s.retention {
		series = series[len(series)-s.retention:]
	}
	s.series[key] = series
}

// Latest returns the newest snapshot for the lineage.
func (s *Service) Latest(symbol types.Symbol, tf types.Timeframe) (types.IndicatorSnapshot, error) {
	return s.At(symbol, tf, 0)
}

// At returns the snapshot ago candles back from the newest (ago 0 is the
// newest). Lookups past the retained window fail with
// ErrInsufficientHistory rather than returning a default.
func (s *Service) At(symbol types.Symbol, tf types.Timeframe, ago int) (types.IndicatorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[lineageKey{symbol, tf}]
	if ago < 0 || ago >= len(series) {
		return types.IndicatorSnapshot{}, fmt.Errorf(
			"%w: %s %s has %d snapshots, wanted %d ago",
			apperrors.ErrInsufficientHistory, symbol, tf, len(series), ago)
	}
	return series[len(series)-1-ago], nil
}

// AsOf returns the snapshot ago candles back from the one stamped at
// anchor. Lookups anchored this way see the same series no matter how
// many newer snapshots were appended while the caller's event sat in a
// queue. A missing anchor or a lookup past the retained window fails
// with ErrInsufficientHistory.
func (s *Service) AsOf(symbol types.Symbol, tf types.Timeframe, anchor time.Time, ago int) (types.IndicatorSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[lineageKey{symbol, tf}]
	idx := -1
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Timestamp.Equal(anchor) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return types.IndicatorSnapshot{}, fmt.Errorf(
			"%w: %s %s has no snapshot at %s",
			apperrors.ErrInsufficientHistory, symbol, tf, anchor.Format(time.RFC3339))
	}
	if ago < 0 || ago > idx {
		return types.IndicatorSnapshot{}, fmt.Errorf(
			"%w: %s %s has %d snapshots before %s, wanted %d ago",
			apperrors.ErrInsufficientHistory, symbol, tf, idx, anchor.Format(time.RFC3339), ago)
	}
	return series[idx-ago], nil
}

// Len returns how many snapshots are retained for the lineage.
func (s *Service) Len(symbol types.Symbol, tf types.Timeframe) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[lineageKey{symbol, tf}])
}
