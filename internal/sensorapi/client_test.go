package sensorapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/schema"
	"ihydro/internal/models"
)

const summaryBody = `{"range":"hour","count":12,"stats":{
	"temperature":{"min":25.1,"max":27.9,"avg":26.4},
	"humidity":{"min":66,"max":71,"avg":68.2},
	"tds":{"min":null,"max":null,"avg":null},
	"ph":{"min":6.1,"max":6.4,"avg":6.25}}}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&Config{BaseURL: srv.URL, Timeout: 2 * time.Second, MaxRetries: 2}, logger.NewTestLogger(t), nil)
}

func TestClient_Current(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sensors", r.URL.Path)
		_, _ = w.Write([]byte(`{"timestamp":"2024-03-01T10:00:00","temperature":"27.5","humidity":70,"tds":"1000","ph":6.2}`))
	})

	reading, err := c.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:00", reading.Timestamp)
	assert.Equal(t, 27.5, reading.Temperature)
	assert.Equal(t, 70.0, reading.Humidity)
	assert.Equal(t, 1000.0, reading.TDS)
	assert.Equal(t, 6.2, reading.PH)
}

func TestClient_CurrentInvalidPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"timestamp":"2024-03-01T10:00:00","temperature":"warm","humidity":70,"tds":1000,"ph":6.2}`))
	})

	_, err := c.Current(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeResponseInvalid))
	assert.Equal(t, "temperature", schema.Path(err))

	var fm *schema.FieldMismatch
	assert.ErrorAs(t, err, &fm)
}

func TestClient_StatusErrorCarriesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`No sensor data yet`))
	})

	_, err := c.Current(context.Background())
	require.Error(t, err)
	se, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeSensorAPIStatus, se.Code)
	assert.Equal(t, "No sensor data yet", se.Message)
	assert.False(t, se.Retryable)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	history, err := c.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_HistoryTrimsToLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/history", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			{"timestamp":"t1","temperature":25,"humidity":70,"tds":1000,"ph":6},
			{"timestamp":"t2","temperature":26,"humidity":70,"tds":1000,"ph":6},
			{"timestamp":"t3","temperature":27,"humidity":70,"tds":1000,"ph":6}]`))
	})

	history, err := c.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "t2", history[0].Timestamp)
	assert.Equal(t, "t3", history[1].Timestamp)
}

func TestClient_HistoryBadItem(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"timestamp":"t1","temperature":25,"humidity":70,"tds":1000,"ph":6},
			{"timestamp":"t2","temperature":26,"humidity":70,"tds":1000}]`))
	})

	_, err := c.History(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, "[1].ph", schema.Path(err))
}

func TestClient_Summary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/summary/hour", r.URL.Path)
		_, _ = w.Write([]byte(summaryBody))
	})

	s, err := c.Summary(context.Background(), models.RangeHour, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, s.Count)
	require.NotNil(t, s.Stats.Temperature.Avg)
	assert.Equal(t, 26.4, *s.Stats.Temperature.Avg)
	assert.Nil(t, s.Stats.TDS.Min)
}

func TestClient_SummaryCustomWindow(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(6 * time.Hour)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/summary/custom", r.URL.Path)
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("from"))
		assert.Equal(t, "2024-03-01T06:00:00Z", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(summaryBody))
	})

	_, err := c.Summary(context.Background(), models.RangeCustom, &Window{From: from, To: to})
	require.NoError(t, err)

	_, err = c.Summary(context.Background(), models.RangeCustom, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRange))

	_, err = c.Summary(context.Background(), models.Range("week"), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRange))
}

func TestClient_SummaryMissingStat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"range":"day","count":3,"stats":{
			"temperature":{"min":1,"max":2,"avg":1.5},
			"humidity":{"min":1,"max":2}}}`))
	})

	_, err := c.Summary(context.Background(), models.RangeDay, nil)
	require.Error(t, err)
	assert.Equal(t, "stats.humidity.avg", schema.Path(err))
}

func TestClient_Chat(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		var req models.ChatRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "why is my pH drifting?", req.Message)
		_, _ = w.Write([]byte(`{"response":"Check your nutrient mix.","session_id":"s-1"}`))
	})

	resp, err := c.Chat(context.Background(), "  why is my pH drifting?  ", "")
	require.NoError(t, err)
	assert.Equal(t, "Check your nutrient mix.", resp.Response)
	assert.Equal(t, "s-1", resp.SessionID)

	_, err = c.Chat(context.Background(), "   ", "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ChatIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Chat(context.Background(), "hello", "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSensorAPIStatus))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(&Config{BaseURL: base, Timeout: time.Second}, logger.NewNoOpLogger(), nil)
	_, err := c.Current(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSensorAPIUnavailable))
}
