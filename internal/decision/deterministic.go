package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/strategy"
	"github.com/quantflow/tradeengine/pkg/types"
)

// ConflictPolicy resolves multiple strategies firing conflicting actions
// in the same candle.
type ConflictPolicy string

const (
	// ConflictHighestConfidence picks the proposal with the highest
	// confidence; ties go to the earlier proposal. This is the default.
	ConflictHighestConfidence ConflictPolicy = "highest-confidence"
	// ConflictFirstStrategy picks the first firing strategy in store order.
	ConflictFirstStrategy ConflictPolicy = "first-strategy"
)

// ParseConflictPolicy maps a config string to a policy, defaulting to
// highest-confidence.
func ParseConflictPolicy(s string) ConflictPolicy {
	if ConflictPolicy(s) == ConflictFirstStrategy {
		return ConflictFirstStrategy
	}
	return ConflictHighestConfidence
}

// Deterministic is the rule-based decision engine. It never blocks, never
// suspends and fails only on malformed input.
type Deterministic struct {
	policy ConflictPolicy
}

// NewDeterministic creates the rule-based engine.
func NewDeterministic(policy ConflictPolicy) *Deterministic {
	return &Deterministic{policy: policy}
}

func (d *Deterministic) Name() string { return "deterministic" }

// Decide aggregates strategy proposals into a single decision. With no
// proposals the decision is Hold. With conflicting actions the configured
// policy selects the winner; confidence scales with the share of
// proposals agreeing with it.
func (d *Deterministic) Decide(_ context.Context, snap types.IndicatorSnapshot, proposals []strategy.Proposal) (types.TradeDecision, error) {
	if err := validateSnapshot(snap); err != nil {
		return types.TradeDecision{}, err
	}

	base := types.TradeDecision{
		ID:        uuid.NewString(),
		Symbol:    snap.Symbol,
		Timeframe: snap.Timeframe,
		Timestamp: snap.Timestamp,
		Engine:    d.Name(),
	}

	if len(proposals) == 0 {
		base.Action = types.ActionHold
		base.Confidence = 0
		base.Rationale = "no strategy conditions satisfied"
		return base, nil
	}

	winner := d.pickWinner(proposals)

	agreeing := 0
	var rationales []string
	for _, p := range proposals {
		if p.Action == winner.Action {
			agreeing++
			rationales = append(rationales, p.Rationale)
		}
	}
	support := float64(agreeing) / float64(len(proposals))

	base.Action = winner.Action
	base.QuantityPercent = winner.QuantityPercent
	base.StopLoss = winner.StopLoss
	base.TakeProfit = winner.TakeProfit
	base.Confidence = clampConfidence(winner.Confidence * (0.5 + 0.5*support))
	base.Rationale = strings.Join(rationales, "; ")
	return base, nil
}

func (d *Deterministic) pickWinner(proposals []strategy.Proposal) strategy.Proposal {
	if d.policy == ConflictFirstStrategy {
		return proposals[0]
	}
	winner := proposals[0]
	for _, p := range proposals[1:] {
		if p.Confidence > winner.Confidence {
			winner = p
		}
	}
	return winner
}

func validateSnapshot(snap types.IndicatorSnapshot) error {
	if snap.Symbol == "" || !snap.Timeframe.IsValid() || snap.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing symbol, timeframe or timestamp", apperrors.ErrInvalidSnapshot)
	}
	return nil
}
