// internal/ingest/pipeline.go
package ingest

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/metrics"
	"ihydro/internal/common/schema"
	"ihydro/internal/models"
)

const (
	IngressUpload = "upload"
	IngressMQTT   = "mqtt"
)

type ReadingStore interface {
	Insert(ctx context.Context, r models.Reading) (int64, error)
}

type LatestCache interface {
	Set(ctx context.Context, r models.Reading) (bool, error)
}

type Broadcaster interface {
	Broadcast(r models.Reading)
}

type Publisher interface {
	Publish(ctx context.Context, r models.Reading) error
}

type Indexer interface {
	Index(ctx context.Context, id int64, r models.Reading) error
}

type Option func(*Pipeline)

func WithCache(c LatestCache) Option      { return func(p *Pipeline) { p.cache = c } }
func WithBroadcaster(b Broadcaster) Option { return func(p *Pipeline) { p.hub = b } }
func WithPublisher(pub Publisher) Option   { return func(p *Pipeline) { p.publisher = pub } }
func WithIndexer(i Indexer) Option         { return func(p *Pipeline) { p.archive = i } }

// Pipeline stores an accepted reading and fans it out to the optional sinks.
// Only the database write is required; sink failures are logged and counted.
type Pipeline struct {
	store     ReadingStore
	cache     LatestCache
	hub       Broadcaster
	publisher Publisher
	archive   Indexer
	logger    logger.Logger
	now       func() time.Time
}

func NewPipeline(store ReadingStore, log logger.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "ingest"}),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Accept persists r and distributes it. A missing timestamp is stamped with
// the current time; any other is normalized to UTC RFC3339 so every sink sees
// the format the database returns.
func (p *Pipeline) Accept(ctx context.Context, ingress string, r models.Reading) (models.Reading, error) {
	if r.Timestamp == "" {
		r.Timestamp = models.FormatTimestamp(p.now())
	} else {
		ts, err := r.Time()
		if err != nil {
			return r, apperrors.NewInvalidReadingError(err)
		}
		r.Timestamp = models.FormatTimestamp(ts)
	}

	id, err := p.store.Insert(ctx, r)
	if err != nil {
		return r, err
	}
	metrics.ReadingsIngested.WithLabelValues(ingress).Inc()

	if p.cache != nil {
		stored, err := p.cache.Set(ctx, r)
		if err != nil {
			p.sinkFailed("redis", id, err)
		} else if !stored {
			p.logger.Debug("older reading left cached latest unchanged", map[string]interface{}{
				"id":        id,
				"timestamp": r.Timestamp,
			})
		}
	}
	if p.hub != nil {
		p.hub.Broadcast(r)
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, r); err != nil {
			p.sinkFailed("kafka", id, err)
		}
	}
	if p.archive != nil {
		if err := p.archive.Index(ctx, id, r); err != nil {
			p.sinkFailed("elasticsearch", id, err)
		}
	}

	p.logger.Debug("reading accepted", map[string]interface{}{
		"id":        id,
		"ingress":   ingress,
		"timestamp": r.Timestamp,
	})
	return r, nil
}

func (p *Pipeline) sinkFailed(sink string, id int64, err error) {
	metrics.SinkFailures.WithLabelValues(sink).Inc()
	p.logger.Warn("sink write failed", map[string]interface{}{
		"sink":  sink,
		"id":    id,
		"error": err,
	})
}

// DecodeUpload validates a device payload. Devices without a clock may omit
// the timestamp; it is stamped with now before validation.
func DecodeUpload(data []byte, now time.Time) (models.Reading, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		if err == nil {
			err = schema.ErrMalformedJSON
		}
		return models.Reading{}, apperrors.NewInvalidReadingError(err)
	}
	if ts, ok := raw["timestamp"]; !ok || ts == nil || ts == "" {
		raw["timestamp"] = models.FormatTimestamp(now)
	}

	r, err := schema.Decode[models.Reading](models.ReadingSchema, raw)
	if err != nil {
		metrics.ValidationFailures.WithLabelValues("upload").Inc()
		return models.Reading{}, apperrors.NewInvalidReadingError(err)
	}
	if _, err := r.Time(); err != nil {
		return models.Reading{}, apperrors.NewInvalidReadingError(err)
	}
	return r, nil
}
