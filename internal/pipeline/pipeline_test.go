package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/internal/broker"
	"github.com/quantflow/tradeengine/internal/decision"
	"github.com/quantflow/tradeengine/internal/events"
	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/internal/history"
	"github.com/quantflow/tradeengine/internal/indicators"
	"github.com/quantflow/tradeengine/internal/monitoring"
	"github.com/quantflow/tradeengine/internal/portfolio"
	"github.com/quantflow/tradeengine/internal/risk"
	"github.com/quantflow/tradeengine/internal/store"
	"github.com/quantflow/tradeengine/internal/strategy"
	"github.com/quantflow/tradeengine/pkg/types"
)

// recorder counts envelopes per topic so tests can assert on downstream
// event cardinality.
type recorder struct {
	mu      sync.Mutex
	byTopic map[string][]Envelope
}

func newRecorder(bus Bus, topics ...string) *recorder {
	r := &recorder{byTopic: make(map[string][]Envelope)}
	for _, topic := range topics {
		t := topic
		bus.Subscribe(t, func(_ context.Context, env Envelope) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.byTopic[t] = append(r.byTopic[t], env)
			return nil
		})
	}
	return r
}

func (r *recorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTopic[topic])
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	pipe  *Pipeline
	bus   *MemoryBus
	paper *broker.Paper
	rec   *recorder
}

// newFixture assembles a full paper pipeline with one always-firing buy
// strategy on BTCUSDT 1h.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testLogger()

	hist := history.NewService(500)
	strategies := strategy.NewStore()
	require.NoError(t, strategies.Put(&strategy.Strategy{
		ID:        "s1",
		Name:      "sma-positive",
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Enabled:   true,
		Condition: strategy.Compare{
			Left:      strategy.Operand{Indicator: "SMA2"},
			Op:        strategy.OpGT,
			Threshold: 0,
		},
		Template: strategy.ActionTemplate{
			Action:          types.ActionBuy,
			QuantityPercent: decimal.NewFromInt(10),
			Confidence:      0.9,
		},
	}))

	paper := broker.NewPaper(decimal.NewFromInt(100_000), "USD", decimal.Zero)
	bus := NewMemoryBus(4, 64, log)

	pipe := New(Deps{
		Bus:       bus,
		Registry:  indicators.NewRegistry(indicators.NewSMA(2)),
		History:   hist,
		Executor:  strategy.NewExecutor(strategies, hist, log),
		Engine:    decision.NewDeterministic(decision.ConflictHighestConfidence),
		Risk: risk.NewManager(risk.Config{
			MaxOrderNotionalPct:  decimal.NewFromInt(25),
			MaxSymbolExposurePct: decimal.NewFromInt(50),
			MaxConcentrationPct:  decimal.NewFromInt(60),
			MaxDailyLossPct:      decimal.NewFromInt(50),
			MaxDrawdownPct:       decimal.NewFromInt(50),
		}),
		Portfolio: portfolio.NewService(types.Money{Amount: decimal.NewFromInt(100_000), Currency: "USD"}),
		Policy:    &execution.Policy{},
		Broker:    paper,
		Candles:   store.NewMemoryCandleStore(),
		Snapshots: store.NewMemorySnapshotStore(),
		Decisions: store.NewMemoryDecisionStore(),
		Orders:    store.NewMemoryOrderStore(),
		Fills:     store.NewMemoryFillStore(),
		Health:    monitoring.NewHealth(),
		Log:       log,
		Lookback:  50,
	})
	pipe.Register()

	rec := newRecorder(bus,
		events.TopicFeaturesComputed,
		events.TopicIndicatorsCalculated,
		events.TopicTradeProposed,
		events.TopicTradeApproved,
		events.TopicTradeRejected,
		events.TopicOrderSubmitted,
		events.TopicOrderCanceled,
		events.TopicPortfolioUpdated,
		events.TopicActionRequired,
	)

	// Paper fills flow back into the pipeline like exchange fills would.
	paper.OnFill(func(ctx context.Context, f types.Fill) {
		require.NoError(t, pipe.PublishFill(ctx, f, ""))
	})

	return &fixture{pipe: pipe, bus: bus, paper: paper, rec: rec}
}

func (f *fixture) candle(ts int64, close float64) types.Candle {
	c := decimal.NewFromFloat(close)
	return types.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: types.Timeframe1h,
		Timestamp: time.Unix(ts, 0).UTC(),
		Open:      c,
		High:      c,
		Low:       c,
		Close:     c,
		Volume:    decimal.NewFromInt(1),
	}
}

func (f *fixture) settle(t *testing.T, topic string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.rec.count(topic) >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("topic %s: want %d events, got %d", topic, want, f.rec.count(topic))
}

func TestPipeline_CandleToFill(t *testing.T) {
	f := newFixture(t)
	defer f.bus.Close()
	ctx := context.Background()

	f.paper.SetMarkPrice("BTCUSDT", decimal.NewFromInt(50_000))

	// First candle seeds history; SMA2 needs two closes before a
	// snapshot carries it, so the strategy fires from the second candle.
	require.NoError(t, f.pipe.PublishCandle(ctx, f.candle(1700000000, 50_000)))
	require.NoError(t, f.pipe.PublishCandle(ctx, f.candle(1700003600, 50_000)))

	f.settle(t, events.TopicPortfolioUpdated, 1)
	assert.GreaterOrEqual(t, f.rec.count(events.TopicTradeProposed), 1)
	assert.GreaterOrEqual(t, f.rec.count(events.TopicTradeApproved), 1)
	assert.Equal(t, 1, f.rec.count(events.TopicOrderSubmitted))

	snap := f.pipe.Portfolio.GetSnapshot()
	pos := snap.Position("BTCUSDT")
	// 10% of $100,000 at $50,000 is 0.2 units.
	assert.True(t, pos.Quantity.Decimal().Equal(decimal.RequireFromString("0.2")),
		"got %s", pos.Quantity)
}

func TestPipeline_DuplicateCandleReemitsWithoutReexecuting(t *testing.T) {
	f := newFixture(t)
	defer f.bus.Close()
	ctx := context.Background()

	f.paper.SetMarkPrice("BTCUSDT", decimal.NewFromInt(50_000))

	require.NoError(t, f.pipe.PublishCandle(ctx, f.candle(1700000000, 50_000)))
	require.NoError(t, f.pipe.PublishCandle(ctx, f.candle(1700003600, 50_000)))
	f.settle(t, events.TopicOrderSubmitted, 1)

	// Redeliver both candles. The snapshot events go out again so a
	// delivery that died before publishing loses nothing, but the stores
	// dedupe everything with side effects.
	require.NoError(t, f.pipe.PublishCandle(ctx, f.candle(1700000000, 50_000)))
	require.NoError(t, f.pipe.PublishCandle(ctx, f.candle(1700003600, 50_000)))
	f.settle(t, events.TopicIndicatorsCalculated, 4)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 4, f.rec.count(events.TopicIndicatorsCalculated),
		"redelivered candles re-emit their snapshot events")
	assert.Equal(t, 4, f.rec.count(events.TopicFeaturesComputed),
		"features re-emit with the candle")
	assert.Equal(t, 2, f.rec.count(events.TopicOrderSubmitted),
		"redelivery re-announces the original submission")

	snap := f.pipe.Portfolio.GetSnapshot()
	pos := snap.Position("BTCUSDT")
	assert.True(t, pos.Quantity.Decimal().Equal(decimal.RequireFromString("0.2")),
		"got %s", pos.Quantity)
}

func TestPipeline_DuplicateFillAppliedOnce(t *testing.T) {
	f := newFixture(t)
	defer f.bus.Close()
	ctx := context.Background()

	fill := types.Fill{
		ID:        "fill-1",
		OrderID:   "ord-1",
		Symbol:    "BTCUSDT",
		Side:      types.SideBuy,
		Quantity:  types.NewQuantityFromFloat(1),
		Price:     decimal.NewFromInt(50_000),
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, f.pipe.PublishFill(ctx, fill, "corr-1"))
	require.NoError(t, f.pipe.PublishFill(ctx, fill, "corr-2"))

	// The replay re-announces the portfolio but must not apply twice.
	f.settle(t, events.TopicPortfolioUpdated, 2)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, f.rec.count(events.TopicPortfolioUpdated))

	pos := f.pipe.Portfolio.GetSnapshot().Position("BTCUSDT")
	assert.True(t, pos.Quantity.Decimal().Equal(decimal.NewFromInt(1)), "got %s", pos.Quantity)
}

func TestPipeline_HoldNotProposed(t *testing.T) {
	f := newFixture(t)
	defer f.bus.Close()
	ctx := context.Background()

	// Single candle: SMA2 not yet computable, no proposals, engine holds.
	require.NoError(t, f.pipe.PublishCandle(ctx, f.candle(1700000000, 50_000)))
	f.settle(t, events.TopicIndicatorsCalculated, 1)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, f.rec.count(events.TopicTradeProposed), "hold decisions are recorded, not proposed")
}
