// internal/stream/source.go
package stream

import (
	"context"
	"time"

	"ihydro/internal/common/logger"
	"ihydro/internal/common/metrics"
	"ihydro/internal/common/observability"
	"ihydro/internal/common/schema"
	"ihydro/internal/models"
)

const (
	SourceSSE   = "sse"
	SourceKafka = "kafka"
)

// Handler receives each validated reading in arrival order. A non-nil error
// stops the source.
type Handler func(ctx context.Context, r models.Reading) error

// Source delivers live readings until ctx is cancelled.
type Source interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// Backoff is a capped exponential reconnect delay.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Min
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// deliver validates one payload and hands it to h. Invalid payloads are
// logged and skipped.
func deliver(ctx context.Context, source string, data []byte, h Handler, log logger.Logger, obs *observability.Observability) error {
	reading, err := models.ParseReading(data)
	if err != nil {
		metrics.StreamEvents.WithLabelValues(source, "rejected").Inc()
		metrics.ValidationFailures.WithLabelValues("stream").Inc()
		obs.RecordStreamEvent(ctx, source, "rejected")
		log.Warn("dropping invalid stream event", map[string]interface{}{
			"source": source,
			"path":   schema.Path(err),
			"error":  err.Error(),
		})
		return nil
	}

	metrics.StreamEvents.WithLabelValues(source, "accepted").Inc()
	obs.RecordStreamEvent(ctx, source, "accepted")
	return h(ctx, reading)
}
