// Package kafka publishes run notifications to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"cloudspend/internal/events"
	"cloudspend/internal/log"
)

const DefaultTopic = "cloudspend.run_completed"

type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per run, keyed by run id so a run's
// notifications land on the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *log.Logger
}

var _ events.Publisher = (*Publisher)(nil)

func NewPublisher(cfg Config, logger *log.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newPublisher(w, cfg.Topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Discard()
	}
	return &Publisher{writer: w, topic: topic, logger: logger.WithComponent(log.ComponentKafka)}
}

func (p *Publisher) Publish(ctx context.Context, msg events.RunCompleted) error {
	data, err := events.Encode(msg)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.RunID),
		Value:   data,
		Time:    msg.Timestamp,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "type", Value: []byte(events.RunCompletedType)},
		},
	})
	if err != nil {
		return fmt.Errorf("write message to %s: %w", p.topic, err)
	}

	p.logger.InfoContext(ctx, "Published run notification",
		log.FieldRunID, msg.RunID, "topic", p.topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
