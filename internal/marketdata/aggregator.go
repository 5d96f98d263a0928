package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/pkg/types"
)

// CandleListener receives each candle the aggregator closes.
type CandleListener func(types.Candle)

// Aggregator rolls ticks into OHLCV candles per (symbol, timeframe)
// bucket. A candle closes when the first tick of the next bucket arrives
// or when Flush is called for a bucket whose wall-clock window has
// passed. Late ticks belonging to an already-closed bucket are dropped
// and counted; the closed candle is immutable.
type Aggregator struct {
	mu        sync.Mutex
	timeframe types.Timeframe
	building  map[types.Symbol]*types.Candle
	closed    map[string]struct{} // keys of candles already emitted
	listener  CandleListener
	log       *logrus.Logger

	lateTicks int
}

func NewAggregator(tf types.Timeframe, listener CandleListener, log *logrus.Logger) *Aggregator {
	return &Aggregator{
		timeframe: tf,
		building:  make(map[types.Symbol]*types.Candle),
		closed:    make(map[string]struct{}),
		listener:  listener,
		log:       log,
	}
}

// bucketStart truncates ts to the open time of its bucket.
func (a *Aggregator) bucketStart(ts time.Time) time.Time {
	return ts.UTC().Truncate(a.timeframe.Duration())
}

// Apply folds one tick into the aggregator, closing the previous bucket
// if the tick opens a new one.
func (a *Aggregator) Apply(tick types.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.bucketStart(tick.Timestamp)

	cur, ok := a.building[tick.Symbol]
	if ok && bucket.After(cur.Timestamp) {
		a.closeLocked(tick.Symbol, cur)
		cur = nil
		ok = false
	}

	if !ok || cur == nil {
		candidate := types.Candle{Symbol: tick.Symbol, Timeframe: a.timeframe, Timestamp: bucket}
		if _, done := a.closed[candidate.Key()]; done {
			a.lateTicks++
			a.log.WithFields(logrus.Fields{
				"symbol": tick.Symbol,
				"bucket": bucket,
			}).Debug("tick for closed candle dropped")
			return
		}
		a.building[tick.Symbol] = &types.Candle{
			Symbol:    tick.Symbol,
			Timeframe: a.timeframe,
			Timestamp: bucket,
			Open:      tick.Price,
			High:      tick.Price,
			Low:       tick.Price,
			Close:     tick.Price,
			Volume:    tick.Size,
		}
		return
	}

	if tick.Price.GreaterThan(cur.High) {
		cur.High = tick.Price
	}
	if tick.Price.LessThan(cur.Low) {
		cur.Low = tick.Price
	}
	cur.Close = tick.Price
	cur.Volume = cur.Volume.Add(tick.Size)
}

// Flush closes every in-progress candle whose bucket ended at or before
// now. Called on a timer so quiet markets still close candles.
func (a *Aggregator) Flush(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.bucketStart(now)
	for sym, cur := range a.building {
		if cur.Timestamp.Before(cutoff) {
			a.closeLocked(sym, cur)
		}
	}
}

func (a *Aggregator) closeLocked(symbol types.Symbol, c *types.Candle) {
	delete(a.building, symbol)
	key := c.Key()
	if _, done := a.closed[key]; done {
		return
	}
	a.closed[key] = struct{}{}
	if a.listener != nil {
		a.listener(*c)
	}
}

// LateTicks reports how many ticks arrived after their candle closed.
func (a *Aggregator) LateTicks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lateTicks
}

// Run consumes ticks from the provider until ctx is canceled, flushing
// stale buckets on a timer.
func (a *Aggregator) Run(ctx context.Context, ticks <-chan types.Tick) {
	flush := time.NewTicker(a.timeframe.Duration() / 4)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Flush(time.Now().Add(a.timeframe.Duration()))
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			a.Apply(t)
		case now := <-flush.C:
			a.Flush(now)
		}
	}
}
