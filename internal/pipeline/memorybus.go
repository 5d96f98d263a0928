package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/internal/apperrors"
)

// maxRedeliveries bounds in-process redelivery of retryable failures.
const maxRedeliveries = 3

// MemoryBus is the in-process Bus used for paper trading and tests. It
// keeps the same contract as the Kafka transport: at-least-once delivery
// and per-key ordering via the keyed dispatcher.
type MemoryBus struct {
	mu         sync.RWMutex
	handlers   map[string][]Handler
	dispatcher *Dispatcher
	log        *logrus.Logger
}

func NewMemoryBus(workers, queueSize int, log *logrus.Logger) *MemoryBus {
	return &MemoryBus{
		handlers:   make(map[string][]Handler),
		dispatcher: NewDispatcher(workers, queueSize, log),
		log:        log,
	}
}

func (b *MemoryBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Publish dispatches env to every subscriber of its topic. Delivery runs
// on the lane hashed from env.Key, so a symbol's events stay ordered
// through every stage.
func (b *MemoryBus) Publish(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	subs := b.handlers[env.Topic]
	b.mu.RUnlock()

	for _, h := range subs {
		handler := h
		if err := b.dispatcher.Submit(ctx, env.Key, func(taskCtx context.Context) {
			b.deliver(taskCtx, handler, env)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *MemoryBus) deliver(ctx context.Context, h Handler, env Envelope) {
	for attempt := 0; ; attempt++ {
		err := h(ctx, env)
		if err == nil {
			return
		}

		var pe *apperrors.PipelineError
		retryable := errors.As(err, &pe) && pe.IsRetryable()
		entry := b.log.WithFields(logrus.Fields{
			"topic":          env.Topic,
			"key":            env.Key,
			"correlation_id": env.CorrelationID,
			"attempt":        attempt + 1,
		})
		if !retryable || attempt >= maxRedeliveries {
			entry.WithError(err).Error("event dropped")
			return
		}
		entry.WithError(err).Warn("event redelivered")
	}
}

func (b *MemoryBus) Close() error {
	b.dispatcher.Close()
	return nil
}
