// internal/ingest/kafka.go
package ingest

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"ihydro/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes accepted readings to the readings topic. All
// messages share one key so consumers see them in order.
type KafkaPublisher struct {
	writer messageWriter
	key    []byte
}

func NewKafkaPublisher(brokers []string, topic, key string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		key: []byte(key),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, r models.Reading) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: p.key, Value: value}); err != nil {
		return fmt.Errorf("publish reading: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
