package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/internal/broker"
	"github.com/quantflow/tradeengine/internal/config"
	"github.com/quantflow/tradeengine/internal/decision"
	"github.com/quantflow/tradeengine/internal/events"
	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/internal/history"
	"github.com/quantflow/tradeengine/internal/indicators"
	"github.com/quantflow/tradeengine/internal/logger"
	"github.com/quantflow/tradeengine/internal/marketdata"
	"github.com/quantflow/tradeengine/internal/monitoring"
	"github.com/quantflow/tradeengine/internal/pipeline"
	"github.com/quantflow/tradeengine/internal/portfolio"
	"github.com/quantflow/tradeengine/internal/report"
	"github.com/quantflow/tradeengine/internal/risk"
	"github.com/quantflow/tradeengine/internal/store"
	"github.com/quantflow/tradeengine/internal/strategy"
	kafkabus "github.com/quantflow/tradeengine/internal/transport/kafka"
	"github.com/quantflow/tradeengine/pkg/types"
)

func main() {
	// .env is optional; the environment always wins.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("engine stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := indicators.NewRegistry(
		indicators.NewMACD(12, 26, 9),
		indicators.NewRSI(14),
		indicators.NewStochastic(14, 3),
		indicators.NewEMA(20),
		indicators.NewSMA(50),
		indicators.NewBollinger(20, 2.0),
		indicators.NewATR(14),
	)
	hist := history.NewService(cfg.History.Retention)
	strategies := strategy.NewStore()
	seedStrategies(strategies, cfg)

	engine := buildEngine(cfg, log)
	riskMgr := risk.NewManager(risk.Config{
		MaxOrderNotionalPct:      decimal.NewFromFloat(cfg.Risk.MaxOrderNotionalPct),
		MaxSymbolExposurePct:     decimal.NewFromFloat(cfg.Risk.MaxSymbolExposurePct),
		MaxConcentrationPct:      decimal.NewFromFloat(cfg.Risk.MaxConcentrationPct),
		MaxDailyLossPct:          decimal.NewFromFloat(cfg.Risk.MaxDailyLossPct),
		MaxDrawdownPct:           decimal.NewFromFloat(cfg.Risk.MaxDrawdownPct),
		MinAutoApproveConfidence: cfg.Risk.MinAutoApproveConfid,
	})

	book := portfolio.NewService(types.Money{
		Amount:   decimal.NewFromInt(100_000),
		Currency: cfg.Currency,
	})

	var bus pipeline.Bus
	if cfg.KafkaEnabled() {
		kb, err := kafkabus.NewBus(kafkabus.Config{
			Brokers:   cfg.Kafka.Brokers,
			GroupID:   cfg.Kafka.GroupID,
			Workers:   cfg.Pipeline.Workers,
			QueueSize: cfg.Pipeline.QueueSize,
		}, log)
		if err != nil {
			return fmt.Errorf("kafka bus: %w", err)
		}
		defer kb.Close()
		bus = kb
	} else {
		mb := pipeline.NewMemoryBus(cfg.Pipeline.Workers, cfg.Pipeline.QueueSize, log)
		defer mb.Close()
		bus = mb
	}

	brk := buildBroker(cfg, log)
	health := monitoring.NewHealth()

	pipe := pipeline.New(pipeline.Deps{
		Bus:       bus,
		Registry:  registry,
		History:   hist,
		Executor:  strategy.NewExecutor(strategies, hist, log),
		Engine:    engine,
		Risk:      riskMgr,
		Portfolio: book,
		Policy:    &execution.Policy{},
		Broker:    brk,
		Candles:   store.NewMemoryCandleStore(),
		Snapshots: store.NewMemorySnapshotStore(),
		Decisions: store.NewMemoryDecisionStore(),
		Orders:    store.NewMemoryOrderStore(),
		Fills:     store.NewMemoryFillStore(),
		Health:    health,
		Log:       log,
		Lookback:  cfg.History.Lookback,
	})
	pipe.Register()

	// Paper fills loop straight back into the pipeline.
	if paper, ok := brk.(*broker.Paper); ok {
		paper.OnFill(func(fillCtx context.Context, f types.Fill) {
			if err := pipe.PublishFill(fillCtx, f, ""); err != nil {
				log.WithError(err).Error("fill publish failed")
			}
		})
	}

	if kb, ok := bus.(*kafkabus.Bus); ok {
		go func() {
			if err := kb.Run(ctx); err != nil {
				log.WithError(err).Error("kafka consumer stopped")
			}
		}()
	}

	startMonitoringServer(cfg, health, log)
	startFeeds(ctx, cfg, pipe, log)
	startDayRoll(ctx, book)

	log.WithFields(logrus.Fields{
		"symbols":    cfg.Symbols,
		"timeframes": cfg.Timeframes,
		"engine":     engine.Name(),
		"kafka":      cfg.KafkaEnabled(),
	}).Info("trade engine started")

	<-ctx.Done()
	log.Info("shutting down")

	snap := book.GetSnapshot()
	report.PrintPortfolio(os.Stdout, snap)
	if fills, err := pipe.Fills.Range(context.Background(), time.Time{}, time.Now().Add(time.Hour)); err == nil && len(fills) > 0 {
		report.PrintFills(os.Stdout, fills)
		if path := os.Getenv("REPORT_XLSX_PATH"); path != "" {
			if err := report.WriteJournalXLSX(path, fills, snap); err != nil {
				log.WithError(err).Error("journal export failed")
			} else {
				log.WithField("path", path).Info("journal exported")
			}
		}
	}
	return nil
}

// buildEngine selects the decision engine once at startup: AI-backed when
// provider credentials are configured, deterministic otherwise.
func buildEngine(cfg *config.Config, log *logrus.Logger) decision.Engine {
	policy := decision.ParseConflictPolicy(cfg.Decision.ConflictPolicy)
	deterministic := decision.NewDeterministic(policy)
	if !cfg.AIEnabled() {
		return deterministic
	}

	provider := decision.NewHTTPProvider(cfg.Decision.ProviderURL, cfg.Decision.ProviderKey, cfg.Decision.ProviderModel)
	memory := decision.NewMemory(cfg.Decision.MemorySize)
	return decision.NewAgent(provider, deterministic, memory, cfg.Decision.Timeout, log)
}

func buildBroker(cfg *config.Config, log *logrus.Logger) broker.Broker {
	if cfg.Exchange.APIKey != "" && cfg.Exchange.APISecret != "" {
		return broker.NewBybit(broker.BybitConfig{
			APIKey:    cfg.Exchange.APIKey,
			APISecret: cfg.Exchange.APISecret,
			Testnet:   cfg.Exchange.Testnet,
			Demo:      cfg.Exchange.Demo,
			Category:  cfg.Exchange.Category,
			Currency:  cfg.Currency,
		}, log)
	}
	return broker.NewPaper(decimal.NewFromInt(100_000), cfg.Currency, decimal.NewFromFloat(0.001))
}

func startMonitoringServer(cfg *config.Config, health *monitoring.Health, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.Handle("/health", health)

	addr := fmt.Sprintf(":%d", cfg.Monitoring.MetricsPort)
	go func() {
		log.WithField("addr", addr).Info("monitoring server listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("monitoring server stopped")
		}
	}()
}

// startFeeds wires market data into the pipeline. With a feed URL
// configured, ticks stream over websocket and aggregate into candles;
// otherwise candles poll from the exchange kline endpoint.
func startFeeds(ctx context.Context, cfg *config.Config, pipe *pipeline.Pipeline, log *logrus.Logger) {
	symbols := make([]types.Symbol, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, types.Symbol(s))
	}

	for _, tfName := range cfg.Timeframes {
		tf, err := types.ParseTimeframe(tfName)
		if err != nil {
			log.WithError(err).WithField("timeframe", tfName).Warn("timeframe skipped")
			continue
		}

		if feedURL := os.Getenv("FEED_WS_URL"); feedURL != "" {
			startTickFeed(ctx, feedURL, tf, symbols, pipe, log)
			continue
		}
		startCandlePolling(ctx, cfg, tf, symbols, pipe, log)
	}
}

func startTickFeed(ctx context.Context, feedURL string, tf types.Timeframe, symbols []types.Symbol, pipe *pipeline.Pipeline, log *logrus.Logger) {
	onDrop := func(source, reason string, at time.Time) {
		ev := events.FeedDisconnected{Source: source, Reason: reason, DisconnectedAt: at}
		env, err := pipeline.NewEnvelope(events.TopicFeedDisconnected, source, "", ev)
		if err == nil {
			_ = pipe.Bus.Publish(ctx, env)
		}
	}
	feed := marketdata.NewWSFeed(feedURL, "websocket", log, onDrop)

	agg := marketdata.NewAggregator(tf, func(c types.Candle) {
		if err := pipe.PublishCandle(ctx, c); err != nil {
			log.WithError(err).Error("candle publish failed")
		}
	}, log)

	go func() {
		ticks, err := feed.Subscribe(ctx, symbols)
		if err != nil {
			log.WithError(err).Error("feed subscribe failed")
			return
		}
		agg.Run(ctx, ticks)
	}()
}

func startCandlePolling(ctx context.Context, cfg *config.Config, tf types.Timeframe, symbols []types.Symbol, pipe *pipeline.Pipeline, log *logrus.Logger) {
	md := marketdata.NewBybitMarketData(cfg.Exchange.Testnet, cfg.Exchange.Category)

	go func() {
		ticker := time.NewTicker(tf.Duration())
		defer ticker.Stop()

		poll := func() {
			now := time.Now().UTC()
			from := now.Add(-2 * tf.Duration())
			for _, sym := range symbols {
				candles, err := md.HistoricalCandles(ctx, sym, tf, from, now)
				if err != nil {
					log.WithError(err).WithField("symbol", sym).Warn("candle poll failed")
					continue
				}
				for _, c := range candles {
					// Skip the still-forming bucket.
					if c.Timestamp.Add(tf.Duration()).After(now) {
						continue
					}
					if err := pipe.PublishCandle(ctx, c); err != nil {
						log.WithError(err).Error("candle publish failed")
					}
				}
			}
		}

		poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()
}

// startDayRoll resets the daily-loss baseline at UTC midnight.
func startDayRoll(ctx context.Context, book *portfolio.Service) {
	go func() {
		for {
			now := time.Now().UTC()
			next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
				book.RollDay()
			}
		}
	}()
}

// seedStrategies installs the default strategy set for every configured
// lineage: RSI mean reversion plus a MACD crossover trend follow.
func seedStrategies(strategies *strategy.Store, cfg *config.Config) {
	for _, sym := range cfg.Symbols {
		for _, tfName := range cfg.Timeframes {
			tf, err := types.ParseTimeframe(tfName)
			if err != nil {
				continue
			}
			symbol := types.Symbol(sym)

			_ = strategies.Put(&strategy.Strategy{
				ID:        fmt.Sprintf("rsi-oversold-%s-%s", sym, tfName),
				Name:      "rsi-oversold",
				Symbol:    symbol,
				Timeframe: tf,
				Enabled:   true,
				Condition: strategy.Compare{
					Left:      strategy.Operand{Indicator: "RSI"},
					Op:        strategy.OpLT,
					Threshold: 30,
				},
				Template: strategy.ActionTemplate{
					Action:          types.ActionBuy,
					QuantityPercent: decimal.NewFromInt(5),
					StopLossPct:     decimal.NewFromInt(2),
					TakeProfitPct:   decimal.NewFromInt(4),
					Confidence:      0.6,
				},
			})

			_ = strategies.Put(&strategy.Strategy{
				ID:        fmt.Sprintf("macd-cross-%s-%s", sym, tfName),
				Name:      "macd-bullish-cross",
				Symbol:    symbol,
				Timeframe: tf,
				Enabled:   true,
				Condition: strategy.Crossover{
					Fast:  strategy.Operand{Indicator: "MACD", Field: "macd"},
					Slow:  strategy.Operand{Indicator: "MACD", Field: "signal"},
					Above: true,
				},
				Template: strategy.ActionTemplate{
					Action:          types.ActionBuy,
					QuantityPercent: decimal.NewFromInt(10),
					StopLossPct:     decimal.NewFromInt(3),
					TakeProfitPct:   decimal.NewFromInt(6),
					Confidence:      0.7,
				},
			})

			_ = strategies.Put(&strategy.Strategy{
				ID:        fmt.Sprintf("rsi-overbought-%s-%s", sym, tfName),
				Name:      "rsi-overbought-exit",
				Symbol:    symbol,
				Timeframe: tf,
				Enabled:   true,
				Condition: strategy.Compare{
					Left:      strategy.Operand{Indicator: "RSI"},
					Op:        strategy.OpGT,
					Threshold: 70,
				},
				Template: strategy.ActionTemplate{
					Action:          types.ActionReduce,
					QuantityPercent: decimal.NewFromInt(50),
					Confidence:      0.6,
				},
			})
		}
	}
}
