package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/monitoring"
	"github.com/quantflow/tradeengine/internal/strategy"
	"github.com/quantflow/tradeengine/pkg/types"
)

// Agent is the AI-backed decision engine. It augments the deterministic
// inputs with a bounded per-symbol memory and delegates to an external
// reasoning provider. On provider failure or timeout it substitutes the
// deterministic engine's decision for the same unit of work, so the
// pipeline never stalls on provider latency.
type Agent struct {
	provider Provider
	fallback *Deterministic
	memory   *Memory
	timeout  time.Duration
	log      *logrus.Logger
}

// NewAgent creates the AI-backed engine. fallback must not be nil.
func NewAgent(provider Provider, fallback *Deterministic, memory *Memory, timeout time.Duration, log *logrus.Logger) *Agent {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Agent{
		provider: provider,
		fallback: fallback,
		memory:   memory,
		timeout:  timeout,
		log:      log,
	}
}

func (a *Agent) Name() string { return "ai-agent" }

// Decide asks the provider for a recommendation under a bounded deadline.
// The provider call is asynchronous: the worker is released as soon as the
// deadline fires, the in-flight call is canceled and treated as a timeout.
func (a *Agent) Decide(ctx context.Context, snap types.IndicatorSnapshot, proposals []strategy.Proposal) (types.TradeDecision, error) {
	if err := validateSnapshot(snap); err != nil {
		return types.TradeDecision{}, err
	}

	rec, err := a.recommend(ctx, snap, proposals)
	if err != nil {
		return a.fallbackDecision(ctx, snap, proposals, err)
	}

	d, err := a.toDecision(snap, rec)
	if err != nil {
		return a.fallbackDecision(ctx, snap, proposals, err)
	}

	a.memory.Record(d)
	return d, nil
}

// RecordOutcome feeds an observed result back into the agent's memory.
func (a *Agent) RecordOutcome(symbol types.Symbol, outcome string) {
	a.memory.RecordOutcome(symbol, outcome)
}

func (a *Agent) recommend(ctx context.Context, snap types.IndicatorSnapshot, proposals []strategy.Proposal) (*Recommendation, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		rec *Recommendation
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rec, err := a.provider.Recommend(callCtx, a.buildPrompt(snap, proposals))
		ch <- result{rec, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled) {
				return nil, fmt.Errorf("%w: %v", apperrors.ErrProviderTimeout, res.err)
			}
			return nil, fmt.Errorf("%w: %v", apperrors.ErrProviderUnavailable, res.err)
		}
		return res.rec, nil
	case <-callCtx.Done():
		// release the worker; the goroutine exits once the provider
		// honors cancellation
		return nil, fmt.Errorf("%w after %s", apperrors.ErrProviderTimeout, a.timeout)
	}
}

func (a *Agent) buildPrompt(snap types.IndicatorSnapshot, proposals []strategy.Proposal) PromptRequest {
	indicators := make(map[string]float64)
	for name, vals := range snap.Indicators {
		for field, v := range vals {
			key := name
			if field != types.FieldValue {
				key = name + "." + field
			}
			indicators[key] = v
		}
	}

	summaries := make([]ProposalSummary, len(proposals))
	for i, p := range proposals {
		summaries[i] = ProposalSummary{
			Strategy:   p.StrategyName,
			Action:     string(p.Action),
			Confidence: p.Confidence,
			Rationale:  p.Rationale,
		}
	}

	return PromptRequest{
		Symbol:     string(snap.Symbol),
		Timeframe:  string(snap.Timeframe),
		Timestamp:  snap.Timestamp,
		Close:      snap.Close,
		Indicators: indicators,
		Proposals:  summaries,
		Memory:     a.memory.Recent(snap.Symbol),
	}
}

func (a *Agent) toDecision(snap types.IndicatorSnapshot, rec *Recommendation) (types.TradeDecision, error) {
	action := types.Action(strings.ToUpper(strings.TrimSpace(rec.Action)))
	if !action.IsValid() {
		return types.TradeDecision{}, fmt.Errorf("%w: provider returned action %q", apperrors.ErrProviderUnavailable, rec.Action)
	}

	return types.TradeDecision{
		ID:              uuid.NewString(),
		Symbol:          snap.Symbol,
		Timeframe:       snap.Timeframe,
		Timestamp:       snap.Timestamp,
		Action:          action,
		QuantityPercent: decimal.NewFromFloat(rec.QuantityPercent),
		Confidence:      clampConfidence(rec.Confidence),
		Rationale:       rec.Rationale,
		Engine:          a.Name(),
	}, nil
}

// fallbackDecision substitutes the deterministic decision for this unit of
// work. The decision keeps the agent's engine identity so the idempotency
// key matches what a successful provider call would have produced.
func (a *Agent) fallbackDecision(ctx context.Context, snap types.IndicatorSnapshot, proposals []strategy.Proposal, cause error) (types.TradeDecision, error) {
	a.log.WithFields(logrus.Fields{
		"symbol":    snap.Symbol,
		"timeframe": snap.Timeframe,
	}).Warnf("ai provider failed, using deterministic fallback: %v", cause)
	monitoring.RecordProviderFallback()

	d, err := a.fallback.Decide(ctx, snap, proposals)
	if err != nil {
		return types.TradeDecision{}, err
	}
	d.Engine = a.Name()
	d.Rationale = "fallback(deterministic): " + d.Rationale
	a.memory.Record(d)
	return d, nil
}
