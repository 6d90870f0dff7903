// internal/stream/kafka.go
package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/observability"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Backoff Backoff
}

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaSource consumes readings published by the API server's ingest
// pipeline.
type KafkaSource struct {
	config *KafkaConfig
	reader messageReader
	logger logger.Logger
	obs    *observability.Observability
}

func NewKafkaSource(cfg *KafkaConfig, log logger.Logger, obs *observability.Observability) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaSource(cfg, reader, log, obs), nil
}

func newKafkaSource(cfg *KafkaConfig, reader messageReader, log logger.Logger, obs *observability.Observability) *KafkaSource {
	if cfg.Backoff.Min <= 0 {
		cfg.Backoff.Min = 500 * time.Millisecond
	}
	if cfg.Backoff.Max < cfg.Backoff.Min {
		cfg.Backoff.Max = 30 * time.Second
	}
	return &KafkaSource{
		config: cfg,
		reader: reader,
		logger: log.WithFields(map[string]interface{}{"component": "kafka-source", "topic": cfg.Topic}),
		obs:    obs,
	}
}

func (s *KafkaSource) Name() string { return SourceKafka }

// Run reads messages until ctx is cancelled or h returns an error. The reader
// is closed on return.
func (s *KafkaSource) Run(ctx context.Context, h Handler) error {
	defer s.reader.Close()

	attempt := 0
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			attempt++
			wait := s.config.Backoff.delay(attempt)
			s.logger.Error("kafka read failed", map[string]interface{}{
				"error":   apperrors.NewStreamDisconnectedError(SourceKafka, err),
				"attempt": attempt,
				"wait_ms": wait.Milliseconds(),
			})
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		attempt = 0

		if err := deliver(ctx, SourceKafka, msg.Value, h, s.logger, s.obs); err != nil {
			return err
		}
	}
}
