package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	defaultWriteTimeout = 5 * time.Second
	// kafka-go waits up to BatchTimeout for a batch to fill before flushing.
	defaultBatchTimeout = 10 * time.Millisecond
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type keyed interface {
	EventKey() string
}

// KafkaPublisher forwards events to a Kafka topic.
type KafkaPublisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: defaultBatchTimeout,
	}
	return NewKafkaPublisherWithWriter(writer, topic), nil
}

func NewKafkaPublisherWithWriter(w MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, timeout: defaultWriteTimeout}
}

// PublishJSON serializes the payload and writes it with event metadata headers.
func (p *KafkaPublisher) PublishJSON(eventType string, payload interface{}) error {
	return p.PublishBatchJSON(eventType, []interface{}{payload})
}

// PublishBatchJSON writes every payload in a single WriteMessages call.
func (p *KafkaPublisher) PublishBatchJSON(eventType string, payloads []interface{}) error {
	if len(payloads) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(payloads))
	for _, payload := range payloads {
		msg, err := newMessage(eventType, payload)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d %s events to %s: %w", len(msgs), eventType, p.topic, err)
	}
	return nil
}

func newMessage(eventType string, payload interface{}) (kafka.Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, err
	}

	eventID := uuid.NewString()
	key := eventID
	if k, ok := payload.(keyed); ok && k.EventKey() != "" {
		key = k.EventKey()
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: raw,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(eventID)},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}, nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
