package decision

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflow/tradeengine/internal/strategy"
	"github.com/quantflow/tradeengine/pkg/types"
)

type fakeProvider struct {
	rec   *Recommendation
	err   error
	delay time.Duration
	calls int
}

func (f *fakeProvider) Recommend(ctx context.Context, _ PromptRequest) (*Recommendation, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.rec, f.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newAgent(p Provider, timeout time.Duration) *Agent {
	return NewAgent(p, NewDeterministic(ConflictHighestConfidence), NewMemory(5), timeout, quietLogger())
}

func TestAgent_ProviderRecommendation(t *testing.T) {
	provider := &fakeProvider{rec: &Recommendation{
		Action:          "buy",
		QuantityPercent: 15,
		Confidence:      0.85,
		Rationale:       "momentum building",
	}}
	agent := newAgent(provider, time.Second)

	d, err := agent.Decide(context.Background(), validSnapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, "ai-agent", d.Engine)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
}

func TestAgent_TimeoutFallsBack(t *testing.T) {
	provider := &fakeProvider{
		rec:   &Recommendation{Action: "buy", Confidence: 0.9},
		delay: 500 * time.Millisecond,
	}
	agent := newAgent(provider, 20*time.Millisecond)

	proposals := []strategy.Proposal{proposal(types.ActionSell, 0.7, "bearish")}

	start := time.Now()
	d, err := agent.Decide(context.Background(), validSnapshot(), proposals)
	require.NoError(t, err)

	// fallback decision, not a stall and not an error
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, types.ActionSell, d.Action)
	assert.Equal(t, "ai-agent", d.Engine, "fallback keeps the active engine identity")
	assert.Contains(t, d.Rationale, "fallback")
}

func TestAgent_ProviderErrorFallsBack(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limited")}
	agent := newAgent(provider, time.Second)

	d, err := agent.Decide(context.Background(), validSnapshot(), []strategy.Proposal{
		proposal(types.ActionBuy, 0.6, "bullish"),
	})
	require.NoError(t, err)
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Contains(t, d.Rationale, "fallback")
}

func TestAgent_InvalidActionFallsBack(t *testing.T) {
	provider := &fakeProvider{rec: &Recommendation{Action: "yolo", Confidence: 0.9}}
	agent := newAgent(provider, time.Second)

	d, err := agent.Decide(context.Background(), validSnapshot(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
}

func TestAgent_ConfidenceClamped(t *testing.T) {
	provider := &fakeProvider{rec: &Recommendation{Action: "SELL", Confidence: 7.5}}
	agent := newAgent(provider, time.Second)

	d, err := agent.Decide(context.Background(), validSnapshot(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestAgent_MemoryAccumulates(t *testing.T) {
	provider := &fakeProvider{rec: &Recommendation{Action: "BUY", Confidence: 0.8}}
	mem := NewMemory(2)
	agent := NewAgent(provider, NewDeterministic(ConflictHighestConfidence), mem, time.Second, quietLogger())

	snap := validSnapshot()
	for i := 0; i < 3; i++ {
		_, err := agent.Decide(context.Background(), snap, nil)
		require.NoError(t, err)
	}

	// ring is bounded
	assert.Len(t, mem.Recent("BTCUSDT"), 2)

	agent.RecordOutcome("BTCUSDT", "filled")
	entries := mem.Recent("BTCUSDT")
	assert.Equal(t, "filled", entries[len(entries)-1].Outcome)
}
