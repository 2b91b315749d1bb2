// Package events publishes resolution events to Kafka.
package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/argproxy/internal/config"
	"github.com/turtacn/argproxy/internal/domain/service"
	"github.com/turtacn/argproxy/pkg/logger"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher is a Kafka-backed implementation of service.EventPublisher.
// Events are keyed by cache key so all events for one attachment land on one partition.
type KafkaPublisher struct {
	writer messageWriter
	logger logger.Logger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic.
func NewKafkaPublisher(cfg *config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	return newKafkaPublisher(writer, log)
}

func newKafkaPublisher(writer messageWriter, log logger.Logger) *KafkaPublisher {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &KafkaPublisher{
		writer: writer,
		logger: log.WithComponent("kafka_publisher"),
	}
}

// PublishResolution sends event to the topic.
func (p *KafkaPublisher) PublishResolution(ctx context.Context, event *service.ResolutionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal resolution event", err)
		return err
	}

	key := []byte(event.CacheKey())
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		p.logger.Error(ctx, "failed to write resolution event to Kafka", err,
			logger.String("outcome", string(event.Outcome)))
		return err
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

// PublishResolution implements service.EventPublisher.
func (NoopPublisher) PublishResolution(context.Context, *service.ResolutionEvent) error { return nil }

// Close implements service.EventPublisher.
func (NoopPublisher) Close() error { return nil }

// NewPublisher returns a KafkaPublisher when cfg enables it and a NoopPublisher otherwise.
func NewPublisher(cfg *config.KafkaConfig, log logger.Logger) service.EventPublisher {
	if !cfg.Enabled {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(cfg, log)
}
