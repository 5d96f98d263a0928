package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/broker"
	"github.com/quantflow/tradeengine/internal/decision"
	"github.com/quantflow/tradeengine/internal/events"
	"github.com/quantflow/tradeengine/internal/execution"
	"github.com/quantflow/tradeengine/internal/history"
	"github.com/quantflow/tradeengine/internal/indicators"
	"github.com/quantflow/tradeengine/internal/logger"
	"github.com/quantflow/tradeengine/internal/monitoring"
	"github.com/quantflow/tradeengine/internal/portfolio"
	"github.com/quantflow/tradeengine/internal/risk"
	"github.com/quantflow/tradeengine/internal/store"
	"github.com/quantflow/tradeengine/internal/strategy"
	"github.com/quantflow/tradeengine/pkg/types"
)

// FeatureIndicator is the pseudo-indicator slot carrying per-candle
// derived features inside each snapshot, so strategies and decision
// prompts address them like any other indicator field.
const FeatureIndicator = "candle"

// Deps collects the collaborators one Pipeline instance drives.
type Deps struct {
	Bus       Bus
	Registry  *indicators.Registry
	History   *history.Service
	Executor  *strategy.Executor
	Engine    decision.Engine
	Risk      *risk.Manager
	Portfolio *portfolio.Service
	Policy    *execution.Policy
	Broker    broker.Broker
	Candles   store.CandleStore
	Snapshots store.SnapshotStore
	Decisions store.DecisionStore
	Orders    store.OrderStore
	Fills     store.FillStore
	Health    *monitoring.Health
	Log       *logrus.Logger
	Lookback  int // candles fed to indicator computation
}

// Pipeline owns the stage handlers. Each handler is idempotent: the
// stage's store is consulted before any side effect repeats, and the
// duplicate path re-emits the downstream event, so a delivery that died
// between claiming its key and publishing loses nothing on redelivery.
type Pipeline struct {
	Deps

	mu     sync.RWMutex
	prices map[types.Symbol]decimal.Decimal
}

func New(deps Deps) *Pipeline {
	if deps.Lookback < 1 {
		deps.Lookback = 200
	}
	return &Pipeline{
		Deps:   deps,
		prices: make(map[types.Symbol]decimal.Decimal),
	}
}

// Register subscribes every stage handler to its topic.
func (p *Pipeline) Register() {
	p.Bus.Subscribe(events.TopicCandleClosed, p.instrumented("candle_closed", p.HandleCandleClosed))
	p.Bus.Subscribe(events.TopicIndicatorsCalculated, p.instrumented("indicators_calculated", p.HandleIndicatorsCalculated))
	p.Bus.Subscribe(events.TopicTradeProposed, p.instrumented("trade_proposed", p.HandleTradeProposed))
	p.Bus.Subscribe(events.TopicTradeApproved, p.instrumented("trade_approved", p.HandleTradeApproved))
	p.Bus.Subscribe(events.TopicOrderFilled, p.instrumented("order_filled", p.HandleOrderFilled))
}

func (p *Pipeline) instrumented(stage string, h Handler) Handler {
	return func(ctx context.Context, env Envelope) error {
		start := time.Now()
		err := h(ctx, env)
		monitoring.ObserveHandler(stage, time.Since(start).Seconds())
		if p.Health != nil {
			p.Health.Touch()
		}
		return err
	}
}

// PublishCandle wraps a closed candle in an envelope and publishes it.
// The candle's key doubles as the ordering lane.
func (p *Pipeline) PublishCandle(ctx context.Context, c types.Candle) error {
	ev := events.CandleClosed{
		CorrelationID: uuid.NewString(),
		Symbol:        c.Symbol,
		Timeframe:     c.Timeframe,
		Candle:        c,
	}
	env, err := NewEnvelope(events.TopicCandleClosed, laneKey(c.Symbol, c.Timeframe), ev.CorrelationID, ev)
	if err != nil {
		return err
	}
	return p.Bus.Publish(ctx, env)
}

func laneKey(symbol types.Symbol, tf types.Timeframe) string {
	return string(symbol) + "|" + string(tf)
}

// HandleCandleClosed stores the candle, computes features and indicator
// snapshots, and publishes IndicatorsCalculated. A duplicate candle
// repeats no side effect but still re-derives and re-emits the snapshot
// event: the previous delivery may have died before publishing it, and
// downstream stages dedupe on their own keys.
func (p *Pipeline) HandleCandleClosed(ctx context.Context, env Envelope) error {
	var ev events.CandleClosed
	if err := env.Decode(&ev); err != nil {
		return apperrors.Validation(err, "pipeline", "decode_candle_closed")
	}
	c := ev.Candle
	log := p.logFor(ev.CorrelationID, c.Symbol, c.Timeframe)

	first, err := p.Candles.Append(ctx, c)
	if err != nil {
		return apperrors.Transient(err, "pipeline", "store_candle")
	}
	if first {
		monitoring.RecordCandle(string(c.Symbol), string(c.Timeframe))
	} else {
		monitoring.RecordDuplicate("candle_closed")
		log.WithField("key", c.Key()).Debug("duplicate candle, re-emitting snapshot")
	}

	p.setPrice(c.Symbol, c.Close)
	p.Portfolio.SetMarkPrice(c.Symbol, c.Close)

	if err := p.publishFeatures(ctx, ev); err != nil {
		log.WithError(err).Warn("features publish failed")
	}

	from := c.Timestamp.Add(-time.Duration(p.Lookback) * c.Timeframe.Duration())
	window, err := p.Candles.Range(ctx, c.Symbol, c.Timeframe, from, c.Timestamp.Add(time.Second))
	if err != nil {
		return apperrors.Transient(err, "pipeline", "load_window")
	}

	inds := p.Registry.ComputeAll(window)
	inds[FeatureIndicator] = featureValues(c)

	closeF, _ := c.Close.Float64()
	snap := types.IndicatorSnapshot{
		Symbol:     c.Symbol,
		Timeframe:  c.Timeframe,
		Timestamp:  c.Timestamp,
		Close:      closeF,
		Indicators: inds,
	}

	stored, err := p.Snapshots.Append(ctx, snap)
	if err != nil {
		return apperrors.Transient(err, "pipeline", "store_snapshot")
	}
	if !stored {
		monitoring.RecordDuplicate("indicator_snapshot")
	}
	// same-timestamp appends overwrite in place, so replays do not grow
	// the series
	p.History.Append(snap)

	out := events.IndicatorsCalculated{CorrelationID: ev.CorrelationID, Snapshot: snap}
	outEnv, err := NewEnvelope(events.TopicIndicatorsCalculated, env.Key, ev.CorrelationID, out)
	if err != nil {
		return apperrors.Invariant(err, "pipeline", "encode_indicators")
	}
	return p.Bus.Publish(ctx, outEnv)
}

// featureValues derives the per-candle feature fields strategies can
// reference as "candle.close", "candle.range" and so on.
func featureValues(c types.Candle) types.IndicatorValues {
	return types.IndicatorValues{
		"close":  c.Close.InexactFloat64(),
		"volume": c.Volume.InexactFloat64(),
		"range":  c.High.Sub(c.Low).InexactFloat64(),
		"body":   c.Close.Sub(c.Open).InexactFloat64(),
	}
}

func (p *Pipeline) publishFeatures(ctx context.Context, ev events.CandleClosed) error {
	c := ev.Candle
	out := events.FeaturesComputed{
		CorrelationID: ev.CorrelationID,
		Symbol:        c.Symbol,
		Timeframe:     c.Timeframe,
		Timestamp:     c.Timestamp,
		Features: map[string]decimal.Decimal{
			"close":  c.Close,
			"volume": c.Volume,
			"range":  c.High.Sub(c.Low),
			"body":   c.Close.Sub(c.Open),
		},
	}
	env, err := NewEnvelope(events.TopicFeaturesComputed, laneKey(c.Symbol, c.Timeframe), ev.CorrelationID, out)
	if err != nil {
		return err
	}
	return p.Bus.Publish(ctx, env)
}

// HandleIndicatorsCalculated evaluates strategies, asks the decision
// engine for a verdict and publishes TradeProposed. Hold decisions are
// recorded but never proposed. A duplicate decision key re-emits the
// originally stored decision, whose id anchors the client order id
// downstream.
func (p *Pipeline) HandleIndicatorsCalculated(ctx context.Context, env Envelope) error {
	var ev events.IndicatorsCalculated
	if err := env.Decode(&ev); err != nil {
		return apperrors.Validation(err, "pipeline", "decode_indicators")
	}
	snap := ev.Snapshot
	log := p.logFor(ev.CorrelationID, snap.Symbol, snap.Timeframe)

	proposals := p.Executor.Evaluate(snap)

	d, err := p.Engine.Decide(ctx, snap, proposals)
	if err != nil {
		if apperrors.IsValidation(err) {
			log.WithError(err).Warn("decision skipped")
			return nil
		}
		return apperrors.Transient(err, "pipeline", "decide")
	}

	first, err := p.Decisions.Append(ctx, d)
	if err != nil {
		return apperrors.Transient(err, "pipeline", "store_decision")
	}
	if first {
		monitoring.RecordDecision(d.Engine, string(d.Action))
	} else {
		monitoring.RecordDuplicate("trade_decision")
		stored, ok, err := p.Decisions.Get(ctx, d.Key())
		if err != nil {
			return apperrors.Transient(err, "pipeline", "load_decision")
		}
		if ok {
			d = stored
		}
		log.WithField("key", d.Key()).Debug("duplicate decision, re-emitting")
	}

	if d.Action == types.ActionHold {
		log.WithField("decision_id", d.ID).Debug("hold recorded")
		return nil
	}

	out := events.TradeProposed{CorrelationID: ev.CorrelationID, Decision: d, Snapshot: snap}
	outEnv, err := NewEnvelope(events.TopicTradeProposed, env.Key, ev.CorrelationID, out)
	if err != nil {
		return apperrors.Invariant(err, "pipeline", "encode_proposed")
	}
	return p.Bus.Publish(ctx, outEnv)
}

// HandleTradeProposed runs risk checks and routes the decision to
// approval, rejection, breach or manual review.
func (p *Pipeline) HandleTradeProposed(ctx context.Context, env Envelope) error {
	var ev events.TradeProposed
	if err := env.Decode(&ev); err != nil {
		return apperrors.Validation(err, "pipeline", "decode_proposed")
	}
	d := ev.Decision
	log := p.logFor(ev.CorrelationID, d.Symbol, d.Timeframe)

	snap := p.Portfolio.GetSnapshot()
	outcome := p.Risk.Evaluate(d, snap, p.price(d.Symbol))
	monitoring.RecordRiskOutcome(string(outcome.Status), string(outcome.Rule))
	now := time.Now().UTC()

	switch {
	case outcome.Status == risk.StatusBreach:
		log.WithFields(logrus.Fields{"rule": outcome.Rule, "reason": outcome.Reason}).Error("risk breach")
		breach := events.RiskBreach{
			CorrelationID: ev.CorrelationID,
			Rule:          string(outcome.Rule),
			Message:       outcome.Reason,
			Symbol:        d.Symbol,
			DetectedAt:    now,
		}
		if err := p.publish(ctx, events.TopicRiskBreach, env.Key, ev.CorrelationID, breach); err != nil {
			return err
		}
		// nothing may fill into a halted book
		p.cancelOpenOrders(ctx, env.Key, ev.CorrelationID, d.Symbol, string(outcome.Rule))
		return p.publishRejected(ctx, env.Key, ev, outcome, now)

	case outcome.Status == risk.StatusRejected:
		log.WithFields(logrus.Fields{"rule": outcome.Rule, "reason": outcome.Reason}).Info("trade rejected")
		return p.publishRejected(ctx, env.Key, ev, outcome, now)

	case outcome.RequiresApproval:
		log.WithField("decision_id", d.ID).Info("manual approval required")
		action := events.ActionRequired{
			CorrelationID: ev.CorrelationID,
			Decision:      d,
			Detail:        outcome.Reason,
			Timestamp:     now,
		}
		return p.publish(ctx, events.TopicActionRequired, env.Key, ev.CorrelationID, action)

	default:
		approved := events.TradeApproved{
			CorrelationID: ev.CorrelationID,
			Decision:      d,
			Approver:      "risk-manager",
			Timestamp:     now,
		}
		return p.publish(ctx, events.TopicTradeApproved, env.Key, ev.CorrelationID, approved)
	}
}

func (p *Pipeline) publishRejected(ctx context.Context, key string, ev events.TradeProposed, outcome risk.Outcome, now time.Time) error {
	p.recordOutcome(ev.Decision.Symbol, "rejected: "+string(outcome.Rule))
	rejected := events.TradeRejected{
		CorrelationID: ev.CorrelationID,
		DecisionID:    ev.Decision.ID,
		Symbol:        ev.Decision.Symbol,
		Rule:          string(outcome.Rule),
		Reason:        outcome.Reason,
		Timestamp:     now,
	}
	return p.publish(ctx, events.TopicTradeRejected, key, ev.CorrelationID, rejected)
}

// cancelOpenOrders pulls the symbol's resting orders after a breach.
// Best effort: a failed sweep is logged, never escalated, so the breach
// events themselves always go out.
func (p *Pipeline) cancelOpenOrders(ctx context.Context, key, correlationID string, symbol types.Symbol, rule string) {
	open, err := p.Broker.ListOpenOrders(ctx, symbol)
	if err != nil {
		p.Log.WithError(err).WithField("symbol", symbol).Warn("open order sweep failed")
		return
	}
	now := time.Now().UTC()
	for _, o := range open {
		if err := p.Broker.CancelOrder(ctx, symbol, o.OrderID); err != nil {
			p.Log.WithError(err).WithField("order_id", o.OrderID).Warn("cancel failed")
			continue
		}
		canceled := events.OrderCanceled{
			CorrelationID: correlationID,
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        symbol,
			Reason:        "risk breach: " + rule,
			CanceledAt:    now,
		}
		if err := p.publish(ctx, events.TopicOrderCanceled, key, correlationID, canceled); err != nil {
			p.Log.WithError(err).Warn("order canceled publish failed")
		}
	}
}

// HandleTradeApproved sizes the order and submits it to the broker. The
// client order id derives from the decision id and is claimed in the
// order store before anything is announced, so a redelivered approval
// re-emits the original submission instead of placing a second order. An
// irrecoverable broker rejection terminates the order and alerts an
// operator instead of retrying.
func (p *Pipeline) HandleTradeApproved(ctx context.Context, env Envelope) error {
	var ev events.TradeApproved
	if err := env.Decode(&ev); err != nil {
		return apperrors.Validation(err, "pipeline", "decode_approved")
	}
	d := ev.Decision
	log := p.logFor(ev.CorrelationID, d.Symbol, d.Timeframe)

	clientOrderID := execution.ClientOrderID(d.ID)
	if prev, ok, err := p.Orders.Get(ctx, clientOrderID); err != nil {
		return apperrors.Transient(err, "pipeline", "load_order")
	} else if ok {
		monitoring.RecordDuplicate("trade_approved")
		if prev.Status == execution.StatusCanceled {
			log.WithField("client_order_id", clientOrderID).Debug("approval already rejected terminally")
			return nil
		}
		log.WithField("client_order_id", clientOrderID).Debug("approval already executed, re-emitting")
		return p.publish(ctx, events.TopicOrderSubmitted, env.Key, ev.CorrelationID, orderSubmittedEvent(ev.CorrelationID, prev))
	}

	price := p.price(d.Symbol)
	if price.IsZero() {
		return apperrors.Transient(
			fmt.Errorf("no reference price for %s", d.Symbol), "pipeline", "build_order")
	}

	snap := p.Portfolio.GetSnapshot()
	pos := snap.Position(d.Symbol)
	var posPtr *types.Position
	if !pos.Quantity.IsZero() {
		posPtr = &pos
	}

	req, err := p.Policy.BuildOrder(d, snap.Account(), posPtr, price)
	if err != nil {
		if apperrors.IsValidation(err) {
			log.WithError(err).Warn("order not built")
			return nil
		}
		return err
	}

	res, err := p.Broker.SubmitOrder(ctx, req)
	if err != nil {
		var pe *apperrors.PipelineError
		if errors.As(err, &pe) && !pe.IsRetryable() {
			return p.rejectOrder(ctx, env.Key, ev, req, err)
		}
		return apperrors.Transient(err, "pipeline", "submit_order")
	}

	ord := execution.NewOrder(req, res.SubmittedAt)
	ord.MarkSubmitted(res.OrderID, res.SubmittedAt)
	if _, err := p.Orders.Append(ctx, *ord); err != nil {
		return apperrors.Transient(err, "pipeline", "store_order")
	}

	monitoring.RecordOrder(string(req.Symbol), string(req.Side), string(req.Type))
	log.WithFields(logrus.Fields{
		"order_id":        res.OrderID,
		"client_order_id": res.ClientOrderID,
		"qty":             req.Quantity.String(),
	}).Info("order submitted")

	return p.publish(ctx, events.TopicOrderSubmitted, env.Key, ev.CorrelationID, orderSubmittedEvent(ev.CorrelationID, *ord))
}

// rejectOrder converts an irrecoverable broker rejection into a terminal
// canceled order plus an operator alert. The client order id is claimed
// with the Canceled order, so redeliveries of the approval stop here.
func (p *Pipeline) rejectOrder(ctx context.Context, key string, ev events.TradeApproved, req execution.OrderRequest, cause error) error {
	now := time.Now().UTC()
	ord := execution.NewOrder(req, now)
	ord.MarkCanceled(now)
	if _, err := p.Orders.Append(ctx, *ord); err != nil {
		return apperrors.Transient(err, "pipeline", "store_order")
	}

	p.logFor(ev.CorrelationID, req.Symbol, ev.Decision.Timeframe).
		WithError(cause).Error("broker rejected order")
	p.recordOutcome(req.Symbol, "canceled: broker rejection")

	canceled := events.OrderCanceled{
		CorrelationID: ev.CorrelationID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Reason:        cause.Error(),
		CanceledAt:    now,
	}
	if err := p.publish(ctx, events.TopicOrderCanceled, key, ev.CorrelationID, canceled); err != nil {
		return err
	}
	alert := events.ActionRequired{
		CorrelationID: ev.CorrelationID,
		Decision:      ev.Decision,
		Detail:        "broker rejected order: " + cause.Error(),
		Timestamp:     now,
	}
	return p.publish(ctx, events.TopicActionRequired, key, ev.CorrelationID, alert)
}

func orderSubmittedEvent(correlationID string, o execution.Order) events.OrderSubmitted {
	return events.OrderSubmitted{
		CorrelationID: correlationID,
		OrderID:       o.BrokerOrderID,
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		Type:          o.Type,
		Quantity:      o.Quantity,
		LimitPrice:    o.LimitPrice,
		SubmittedAt:   o.UpdatedAt,
	}
}

// HandleOrderFilled journals the fill and applies it to the portfolio.
// A replayed fill id changes nothing but still re-announces the current
// portfolio, covering a crash between the journal write and the publish.
func (p *Pipeline) HandleOrderFilled(ctx context.Context, env Envelope) error {
	var ev events.OrderFilled
	if err := env.Decode(&ev); err != nil {
		return apperrors.Validation(err, "pipeline", "decode_filled")
	}
	fill := ev.Fill

	first, err := p.Fills.Append(ctx, fill)
	if err != nil {
		return apperrors.Transient(err, "pipeline", "store_fill")
	}
	if !first {
		monitoring.RecordDuplicate("order_filled")
		return p.publishPortfolioUpdated(ctx, env.Key, ev.CorrelationID, p.Portfolio.GetSnapshot())
	}
	monitoring.RecordFill(string(fill.Symbol), string(fill.Side))

	snap, changed, err := p.Portfolio.ApplyFill(fill)
	if err != nil {
		return apperrors.Invariant(err, "pipeline", "apply_fill")
	}
	if !changed {
		monitoring.RecordDuplicate("portfolio_fill")
	} else {
		equity, _ := snap.Equity.Amount.Float64()
		monitoring.UpdateEquity(equity)
		p.recordOutcome(fill.Symbol, fmt.Sprintf("filled %s %s @ %s", fill.Side, fill.Quantity, fill.Price))
	}
	return p.publishPortfolioUpdated(ctx, env.Key, ev.CorrelationID, snap)
}

func (p *Pipeline) publishPortfolioUpdated(ctx context.Context, key, correlationID string, snap portfolio.Snapshot) error {
	updated := events.PortfolioUpdated{
		CorrelationID: correlationID,
		Cash:          snap.Cash,
		Equity:        snap.Equity,
		BuyingPower:   snap.BuyingPower,
		UnrealizedPnL: snap.UnrealizedPnL,
		RealizedPnL:   snap.RealizedPnL,
		PositionCount: len(snap.Positions),
		UpdatedAt:     snap.UpdatedAt,
	}
	return p.publish(ctx, events.TopicPortfolioUpdated, key, correlationID, updated)
}

// recordOutcome feeds an observed result back to the decision engine
// when the active engine keeps memory.
func (p *Pipeline) recordOutcome(symbol types.Symbol, outcome string) {
	if rec, ok := p.Engine.(decision.OutcomeRecorder); ok {
		rec.RecordOutcome(symbol, outcome)
	}
}

// PublishFill feeds a broker fill into the pipeline.
func (p *Pipeline) PublishFill(ctx context.Context, fill types.Fill, correlationID string) error {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ev := events.OrderFilled{CorrelationID: correlationID, Fill: fill}
	return p.publish(ctx, events.TopicOrderFilled, string(fill.Symbol), correlationID, ev)
}

func (p *Pipeline) publish(ctx context.Context, topic, key, correlationID string, v interface{}) error {
	env, err := NewEnvelope(topic, key, correlationID, v)
	if err != nil {
		return apperrors.Invariant(err, "pipeline", "encode_"+topic)
	}
	return p.Bus.Publish(ctx, env)
}

func (p *Pipeline) setPrice(symbol types.Symbol, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

func (p *Pipeline) price(symbol types.Symbol) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prices[symbol]
}

func (p *Pipeline) logFor(correlationID string, symbol types.Symbol, tf types.Timeframe) *logrus.Entry {
	return logger.ForLineage(p.Log, symbol, tf, correlationID)
}
