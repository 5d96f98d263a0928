package decision

import (
	"sync"
	"time"

	"github.com/quantflow/tradeengine/pkg/types"
)

// MemoryEntry is one remembered decision, included in subsequent prompts
// for the same symbol.
type MemoryEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Outcome    string    `json:"outcome,omitempty"` // filled in when a result is known
}

// Memory is a bounded per-symbol ring of recent decisions and outcomes.
type Memory struct {
	mu       sync.Mutex
	capacity int
	entries  map[types.Symbol][]MemoryEntry
}

// NewMemory creates a memory keeping at most capacity entries per symbol.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		capacity: capacity,
		entries:  make(map[types.Symbol][]MemoryEntry),
	}
}

// Record remembers a decision for its symbol, evicting the oldest entry
// once the ring is full.
func (m *Memory) Record(d types.TradeDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring := append(m.entries[d.Symbol], MemoryEntry{
		Timestamp:  d.Timestamp,
		Action:     string(d.Action),
		Confidence: d.Confidence,
		Rationale:  d.Rationale,
	})
	if len(ring) > m.capacity {
		ring = ring[len(ring)-m.capacity:]
	}
	m.entries[d.Symbol] = ring
}

// RecordOutcome annotates the most recent entry for the symbol with an
// observed outcome, e.g. "filled" or "rejected: max-order-notional".
func (m *Memory) RecordOutcome(symbol types.Symbol, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring := m.entries[symbol]
	if len(ring) == 0 {
		return
	}
	ring[len(ring)-1].Outcome = outcome
}

// Recent returns a copy of the remembered entries for the symbol, oldest
// first.
func (m *Memory) Recent(symbol types.Symbol) []MemoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring := m.entries[symbol]
	out := make([]MemoryEntry, len(ring))
	copy(out, ring)
	return out
}
