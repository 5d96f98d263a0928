package decision

import (
	"context"
	"time"
)

// PromptRequest is the structured payload sent to the reasoning provider.
// The provider's internal reasoning is opaque to the pipeline.
type PromptRequest struct {
	Symbol     string             `json:"symbol"`
	Timeframe  string             `json:"timeframe"`
	Timestamp  time.Time          `json:"timestamp"`
	Close      float64            `json:"close"`
	Indicators map[string]float64 `json:"indicators"`
	Proposals  []ProposalSummary  `json:"proposals"`
	Memory     []MemoryEntry      `json:"memory"`
}

// ProposalSummary is the compact strategy-proposal form sent to the
// provider.
type ProposalSummary struct {
	Strategy   string  `json:"strategy"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Recommendation is the provider's structured answer.
type Recommendation struct {
	Action          string  `json:"action"`
	QuantityPercent float64 `json:"quantity_percent"`
	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale"`
}

// Provider is the external reasoning capability behind the AI engine.
// Implementations must respect ctx cancellation; a canceled call is
// reported by the agent as a provider timeout.
type Provider interface {
	Recommend(ctx context.Context, req PromptRequest) (*Recommendation, error)
}
