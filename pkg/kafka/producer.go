package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/tester620/server-ancestropedia-v1/pkg/tracing"
)

// Producer publishes graph lifecycle events.
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PersonEvent represents a lifecycle event about a person node.
type PersonEvent struct {
	EventType string          `json:"event_type"` // created, updated, merged, deleted
	PersonID  string          `json:"person_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	// MergedFrom carries the replaced id on identity merges.
	MergedFrom string    `json:"merged_from,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RelationEvent represents an event about a relationship edge.
type RelationEvent struct {
	EventType    string          `json:"event_type"` // linked, unlinked
	RelationType string          `json:"relation_type"`
	FromPersonID string          `json:"from_person_id"`
	ToPersonID   string          `json:"to_person_id"`
	Properties   json.RawMessage `json:"properties,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// PublishPersonEvent publishes a person event, keyed by person id.
func (p *Producer) PublishPersonEvent(ctx context.Context, event *PersonEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishPersonEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.PersonID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_type": event.EventType, "person_id": event.PersonID}).Error("Failed to publish person event")
		return err
	}
	return nil
}

// PublishRelationEvent publishes a relation event, keyed by the from id.
func (p *Producer) PublishRelationEvent(ctx context.Context, event *RelationEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishRelationEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.FromPersonID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "relation_type", Value: []byte(event.RelationType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_type": event.EventType, "from": event.FromPersonID, "to": event.ToPersonID}).Error("Failed to publish relation event")
		return err
	}
	return nil
}
