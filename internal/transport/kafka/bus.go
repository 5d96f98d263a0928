// Package kafka implements the pipeline Bus over Kafka. Topic keys map
// to partition keys, so Kafka preserves the same per-lineage ordering the
// in-memory bus provides in-process.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/internal/apperrors"
	"github.com/quantflow/tradeengine/internal/pipeline"
)

const (
	readPollTimeout = time.Second

	// maxDeliveries bounds in-place retries of a retryable handler
	// failure before the offset commits past the message.
	maxDeliveries = 3
	retryDelay    = 500 * time.Millisecond

	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Config holds the broker connection and consumer pool settings.
type Config struct {
	Brokers   string // bootstrap.servers
	GroupID   string
	Workers   int
	QueueSize int
}

// Bus is the Kafka-backed pipeline.Bus. Publish produces the envelope as
// JSON with the envelope key as partition key. Consumed envelopes fan out
// through the keyed dispatcher, so handlers for different lineages run
// concurrently while one lineage's events stay ordered. Offsets commit
// only after the handlers finish, giving at-least-once delivery.
type Bus struct {
	producer   *kafka.Producer
	consumer   *kafka.Consumer
	dispatcher *pipeline.Dispatcher
	log        *logrus.Logger

	mu       sync.RWMutex
	handlers map[string][]pipeline.Handler

	closeOnce sync.Once
}

func NewBus(cfg Config, log *logrus.Logger) (*Bus, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}

	b := &Bus{
		producer:   producer,
		consumer:   consumer,
		dispatcher: pipeline.NewDispatcher(workers, queueSize, log),
		log:        log,
		handlers:   make(map[string][]pipeline.Handler),
	}
	go b.deliveryReports()
	return b, nil
}

func (b *Bus) deliveryReports() {
	for e := range b.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			b.log.WithError(m.TopicPartition.Error).
				WithField("topic", *m.TopicPartition.Topic).
				Error("message delivery failed")
		}
	}
}

func (b *Bus) Publish(_ context.Context, env pipeline.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return apperrors.Invariant(err, "kafka_bus", "encode")
	}
	topic := env.Topic
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(env.Key),
		Value:          payload,
	}
	if err := b.producer.Produce(msg, nil); err != nil {
		return apperrors.Transient(err, "kafka_bus", "produce")
	}
	return nil
}

// Subscribe registers a handler. All subscriptions must happen before
// Run starts the consumer loop.
func (b *Bus) Subscribe(topic string, h pipeline.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Run consumes subscribed topics until ctx is canceled. Each decoded
// envelope is handed to the dispatcher on its partition key; the read
// loop itself never executes handlers, so a slow symbol cannot stall the
// others. A crash before the post-handler commit redelivers; handler
// idempotency makes the redelivery harmless.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.RLock()
	topics := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		topics = append(topics, t)
	}
	b.mu.RUnlock()

	if err := b.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	b.log.WithFields(logrus.Fields{"topics": topics}).Info("kafka consumer started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, err := b.consumer.ReadMessage(readPollTimeout)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
				continue
			}
			b.log.WithError(err).Error("kafka read failed")
			continue
		}

		var env pipeline.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			b.log.WithError(err).Warn("malformed envelope dropped")
			b.commit(msg)
			continue
		}

		if err := b.dispatcher.Submit(ctx, env.Key, func(taskCtx context.Context) {
			b.process(taskCtx, env, msg)
		}); err != nil {
			return nil
		}
	}
}

// process runs the topic's handlers on a dispatcher lane and commits the
// offset afterwards. Retryable failures retry in place so the commit
// never moves past an event that has not been handled.
func (b *Bus) process(ctx context.Context, env pipeline.Envelope, msg *kafka.Message) {
	b.mu.RLock()
	subs := b.handlers[env.Topic]
	b.mu.RUnlock()

	for _, h := range subs {
		for attempt := 1; ; attempt++ {
			err := h(ctx, env)
			if err == nil {
				break
			}
			var pe *apperrors.PipelineError
			retryable := errors.As(err, &pe) && pe.IsRetryable()
			entry := b.log.WithFields(logrus.Fields{
				"topic":          env.Topic,
				"key":            env.Key,
				"correlation_id": env.CorrelationID,
				"attempt":        attempt,
			})
			if !retryable || attempt >= maxDeliveries {
				entry.WithError(err).Error("event dropped")
				break
			}
			entry.WithError(err).Warn("handler retried")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
	b.commit(msg)
}

func (b *Bus) commit(msg *kafka.Message) {
	if _, err := b.consumer.CommitMessage(msg); err != nil {
		b.log.WithError(err).Error("offset commit failed")
	}
}

func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.dispatcher.Close()
		b.producer.Flush(5000)
		b.producer.Close()
		err = b.consumer.Close()
	})
	return err
}
