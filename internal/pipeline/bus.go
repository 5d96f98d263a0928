// Package pipeline wires candle ingestion through indicators, decision,
// risk, execution and portfolio accounting as an event-driven flow over
// a message bus.
package pipeline

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope is the transport frame for every event. Key selects the
// ordering lane; events sharing a key are handled strictly in order.
type Envelope struct {
	Topic         string          `json:"topic"`
	Key           string          `json:"key"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope serializes v into an envelope for topic.
func NewEnvelope(topic, key, correlationID string, v interface{}) (Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Topic:         topic,
		Key:           key,
		CorrelationID: correlationID,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into out.
func (e Envelope) Decode(out interface{}) error {
	return json.Unmarshal(e.Payload, out)
}

// Handler processes one delivered envelope. Returning a retryable error
// asks the bus to redeliver; any other error drops the message after
// logging.
type Handler func(ctx context.Context, env Envelope) error

// Bus is the transport collaborator. Delivery is at least once; handlers
// are responsible for idempotency.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(topic string, h Handler)
	Close() error
}
