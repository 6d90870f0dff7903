// internal/storage/readings.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/database"
	"ihydro/internal/common/logger"
	"ihydro/internal/models"
)

var readingMigrations = []string{
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		humidity DOUBLE PRECISION NOT NULL,
		tds DOUBLE PRECISION NOT NULL,
		ph DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sensor_readings_timestamp_idx ON sensor_readings (timestamp DESC)`,
}

// ReadingStore persists sensor readings in Postgres.
type ReadingStore struct {
	pg     *database.PostgresClient
	logger logger.Logger
}

func NewReadingStore(pg *database.PostgresClient, log logger.Logger) *ReadingStore {
	return &ReadingStore{pg: pg, logger: log}
}

func (s *ReadingStore) Migrate(ctx context.Context) error {
	return s.pg.Migrate(ctx, readingMigrations)
}

// Insert stores r and returns its row id. r.Timestamp must parse.
func (s *ReadingStore) Insert(ctx context.Context, r models.Reading) (int64, error) {
	ts, err := r.Time()
	if err != nil {
		return 0, apperrors.NewInvalidReadingError(err)
	}

	var id int64
	err = s.pg.DB.QueryRowContext(ctx, `
		INSERT INTO sensor_readings (timestamp, temperature, humidity, tds, ph)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ts.UTC(), r.Temperature, r.Humidity, r.TDS, r.PH,
	).Scan(&id)
	if err != nil {
		return 0, apperrors.NewStorageInsertFailedError(err)
	}
	return id, nil
}

func (s *ReadingStore) Latest(ctx context.Context) (models.Reading, error) {
	row := s.pg.DB.QueryRowContext(ctx, `
		SELECT timestamp, temperature, humidity, tds, ph
		FROM sensor_readings
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`)

	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reading{}, apperrors.NewReadingNotFoundError()
	}
	if err != nil {
		return models.Reading{}, apperrors.NewStorageQueryFailedError("latest", err)
	}
	return r, nil
}

// History returns the newest limit readings, oldest first.
func (s *ReadingStore) History(ctx context.Context, limit int) ([]models.Reading, error) {
	rows, err := s.pg.DB.QueryContext(ctx, `
		SELECT timestamp, temperature, humidity, tds, ph FROM (
			SELECT id, timestamp, temperature, humidity, tds, ph
			FROM sensor_readings
			ORDER BY timestamp DESC, id DESC
			LIMIT $1
		) recent
		ORDER BY timestamp ASC, id ASC`, limit)
	if err != nil {
		return nil, apperrors.NewStorageQueryFailedError("history", err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, limit)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, apperrors.NewStorageQueryFailedError("history", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageQueryFailedError("history", err)
	}
	return out, nil
}

// SummaryBetween aggregates readings with from <= timestamp <= to. Stats are
// nil when no reading falls in the window.
func (s *ReadingStore) SummaryBetween(ctx context.Context, rangeName string, from, to time.Time) (models.Summary, error) {
	var (
		count int
		vals  [12]sql.NullFloat64
	)
	dest := []interface{}{&count}
	for i := range vals {
		dest = append(dest, &vals[i])
	}

	err := s.pg.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
			MIN(temperature), MAX(temperature), AVG(temperature),
			MIN(humidity), MAX(humidity), AVG(humidity),
			MIN(tds), MAX(tds), AVG(tds),
			MIN(ph), MAX(ph), AVG(ph)
		FROM sensor_readings
		WHERE timestamp >= $1 AND timestamp <= $2`,
		from.UTC(), to.UTC(),
	).Scan(dest...)
	if err != nil {
		return models.Summary{}, apperrors.NewStorageQueryFailedError("summary", err)
	}

	summary := models.Summary{Range: rangeName, Count: count}
	for i, m := range models.AllMetrics {
		summary.Stats.Set(m, models.SummaryStat{
			Min: nullable(vals[i*3]),
			Max: nullable(vals[i*3+1]),
			Avg: nullable(vals[i*3+2]),
		})
	}
	return summary, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReading(row scanner) (models.Reading, error) {
	var (
		ts time.Time
		r  models.Reading
	)
	if err := row.Scan(&ts, &r.Temperature, &r.Humidity, &r.TDS, &r.PH); err != nil {
		return models.Reading{}, err
	}
	r.Timestamp = models.FormatTimestamp(ts)
	return r, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
