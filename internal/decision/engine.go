// Package decision converts indicator snapshots and strategy proposals
// into trade decisions. Two interchangeable engines exist: a deterministic
// rule-based engine and an AI-agent engine that falls back to the
// deterministic one. The active engine is chosen once at startup.
package decision

import (
	"context"

	"github.com/quantflow/tradeengine/internal/strategy"
	"github.com/quantflow/tradeengine/pkg/types"
)

// Engine is the single decision capability the pipeline depends on.
// Downstream components never branch on which implementation is active.
type Engine interface {
	// Name identifies the engine; it is part of the decision idempotency key.
	Name() string
	// Decide converts one candle's snapshot and proposals into a decision.
	Decide(ctx context.Context, snap types.IndicatorSnapshot, proposals []strategy.Proposal) (types.TradeDecision, error)
}

// OutcomeRecorder is implemented by engines that keep memory of how
// their decisions played out. The pipeline feeds fill and rejection
// results to any active engine that implements it.
type OutcomeRecorder interface {
	RecordOutcome(symbol types.Symbol, outcome string)
}

// clampConfidence bounds a confidence value to [0, 1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
