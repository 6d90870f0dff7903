package server

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/models"
)

type MockReadings struct {
	LatestFunc  func(ctx context.Context) (models.Reading, error)
	HistoryFunc func(ctx context.Context, limit int) ([]models.Reading, error)
	SummaryFunc func(ctx context.Context, rangeName string, from, to time.Time) (models.Summary, error)
}

func (m *MockReadings) Latest(ctx context.Context) (models.Reading, error) {
	if m.LatestFunc != nil {
		return m.LatestFunc(ctx)
	}
	return models.Reading{}, apperrors.NewReadingNotFoundError()
}

func (m *MockReadings) History(ctx context.Context, limit int) ([]models.Reading, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, limit)
	}
	return []models.Reading{}, nil
}

func (m *MockReadings) SummaryBetween(ctx context.Context, rangeName string, from, to time.Time) (models.Summary, error) {
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx, rangeName, from, to)
	}
	return models.Summary{Range: rangeName}, nil
}

type MockCache struct {
	GetFunc func(ctx context.Context) (models.Reading, bool, error)
}

func (m *MockCache) Get(ctx context.Context) (models.Reading, bool, error) {
	return m.GetFunc(ctx)
}

type MockIngestor struct {
	AcceptFunc func(ctx context.Context, ingress string, r models.Reading) (models.Reading, error)
}

func (m *MockIngestor) Accept(ctx context.Context, ingress string, r models.Reading) (models.Reading, error) {
	if m.AcceptFunc != nil {
		return m.AcceptFunc(ctx, ingress, r)
	}
	return r, nil
}

type MockAssistant struct {
	ReplyFunc func(ctx context.Context, sessionID, message string) (models.ChatResponse, error)
}

func (m *MockAssistant) Reply(ctx context.Context, sessionID, message string) (models.ChatResponse, error) {
	return m.ReplyFunc(ctx, sessionID, message)
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sample(ts string, temp float64) models.Reading {
	return models.Reading{Timestamp: ts, Temperature: temp, Humidity: 60, TDS: 900, PH: 6.2}
}

func newTestServer(t *testing.T, readings Readings, ingest Ingestor, assistant Assistant, opts ...Option) (*Server, *Hub) {
	t.Helper()
	cfg := &Config{HistoryDefault: 50, HistoryMax: 100, KeepAlive: 20 * time.Millisecond}
	hub := NewHub(4)
	s := New(cfg, readings, ingest, assistant, hub, logger.NewTestLogger(t), opts...)
	s.now = func() time.Time { return fixedNow }
	return s, hub
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestServer_Root(t *testing.T) {
	s, _ := newTestServer(t, &MockReadings{}, &MockIngestor{}, nil)
	rec := do(t, s.Router(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "iHydro server is running", rec.Body.String())
}

func TestServer_Sensors(t *testing.T) {
	stored := sample("2024-05-01T11:59:00Z", 27.5)

	t.Run("cache hit skips the store", func(t *testing.T) {
		cached := sample("2024-05-01T11:59:30Z", 28)
		readings := &MockReadings{LatestFunc: func(context.Context) (models.Reading, error) {
			t.Fatal("store should not be queried")
			return models.Reading{}, nil
		}}
		cache := &MockCache{GetFunc: func(context.Context) (models.Reading, bool, error) { return cached, true, nil }}
		s, _ := newTestServer(t, readings, &MockIngestor{}, nil, WithCache(cache))

		rec := do(t, s.Router(), http.MethodGet, "/api/sensors", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got, err := models.ParseReading(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, cached, got)
	})

	t.Run("cache error falls back to store", func(t *testing.T) {
		readings := &MockReadings{LatestFunc: func(context.Context) (models.Reading, error) { return stored, nil }}
		cache := &MockCache{GetFunc: func(context.Context) (models.Reading, bool, error) {
			return models.Reading{}, false, errors.New("redis down")
		}}
		s, _ := newTestServer(t, readings, &MockIngestor{}, nil, WithCache(cache))

		rec := do(t, s.Router(), http.MethodGet, "/api/sensors", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got, err := models.ParseReading(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, stored, got)
	})

	t.Run("empty store is 404", func(t *testing.T) {
		s, _ := newTestServer(t, &MockReadings{}, &MockIngestor{}, nil)
		rec := do(t, s.Router(), http.MethodGet, "/api/sensors", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(apperrors.ErrCodeReadingNotFound), errorCode(t, rec))
	})
}

func TestServer_History(t *testing.T) {
	var gotLimit int
	readings := &MockReadings{HistoryFunc: func(_ context.Context, limit int) ([]models.Reading, error) {
		gotLimit = limit
		return []models.Reading{sample("2024-05-01T11:58:00Z", 26), sample("2024-05-01T11:59:00Z", 27)}, nil
	}}
	s, _ := newTestServer(t, readings, &MockIngestor{}, nil)
	h := s.Router()

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
	}{
		{name: "default", query: "", wantCode: http.StatusOK, wantLimit: 50},
		{name: "explicit", query: "?limit=10", wantCode: http.StatusOK, wantLimit: 10},
		{name: "capped", query: "?limit=1000", wantCode: http.StatusOK, wantLimit: 100},
		{name: "not a number", query: "?limit=ten", wantCode: http.StatusBadRequest},
		{name: "zero", query: "?limit=0", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLimit = 0
			rec := do(t, h, http.MethodGet, "/api/history"+tt.query, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, string(apperrors.ErrCodeInvalidRequest), errorCode(t, rec))
				return
			}
			assert.Equal(t, tt.wantLimit, gotLimit)
			history, err := models.ParseHistory(rec.Body.Bytes())
			require.NoError(t, err)
			assert.Len(t, history, 2)
		})
	}
}

func TestServer_Summary(t *testing.T) {
	type call struct {
		rng      string
		from, to time.Time
	}
	var got call
	readings := &MockReadings{SummaryFunc: func(_ context.Context, rangeName string, from, to time.Time) (models.Summary, error) {
		got = call{rangeName, from, to}
		return models.Summary{Range: rangeName, Count: 3}, nil
	}}
	s, _ := newTestServer(t, readings, &MockIngestor{}, nil)
	h := s.Router()

	t.Run("hour", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/summary/hour", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, call{"hour", fixedNow.Add(-time.Hour), fixedNow}, got)
	})

	t.Run("day", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/summary/day", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, fixedNow.Add(-24*time.Hour), got.from)
	})

	t.Run("custom window", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/summary/custom?from=2024-04-30T00:00:00Z&to=2024-04-30T06:00:00Z", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "custom", got.rng)
		assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), got.from)
		assert.Equal(t, time.Date(2024, 4, 30, 6, 0, 0, 0, time.UTC), got.to)
	})

	t.Run("custom defaults to now", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/summary/custom?from=2024-04-30T00:00:00Z", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, fixedNow, got.to)
	})

	bad := []string{
		"/api/summary/week",
		"/api/summary/custom",
		"/api/summary/custom?from=yesterday",
		"/api/summary/custom?from=2024-04-30T06:00:00Z&to=2024-04-30T00:00:00Z",
	}
	for _, target := range bad {
		t.Run(target, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(apperrors.ErrCodeInvalidRange), errorCode(t, rec))
		})
	}
}

func TestServer_Upload(t *testing.T) {
	var accepted []models.Reading
	ingest := &MockIngestor{AcceptFunc: func(_ context.Context, ingress string, r models.Reading) (models.Reading, error) {
		assert.Equal(t, "upload", ingress)
		accepted = append(accepted, r)
		return r, nil
	}}
	s, _ := newTestServer(t, &MockReadings{}, ingest, nil)
	h := s.Router()

	rec := do(t, h, http.MethodPost, "/api/upload", `{"temperature":"28.4","humidity":61,"tds":880,"ph":6.1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status  string         `json:"status"`
		Reading models.Reading `json:"reading"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "2024-05-01T12:00:00Z", resp.Reading.Timestamp)
	assert.Equal(t, 28.4, resp.Reading.Temperature)
	require.Len(t, accepted, 1)

	rec = do(t, h, http.MethodPost, "/api/upload", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeInvalidRequest), errorCode(t, rec))

	rec = do(t, h, http.MethodPost, "/api/upload", `{"temperature":"hot","humidity":61,"tds":880,"ph":6.1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperrors.ErrCodeInvalidReading), errorCode(t, rec))
	assert.Len(t, accepted, 1)
}

func TestServer_UploadStorageFailure(t *testing.T) {
	ingest := &MockIngestor{AcceptFunc: func(context.Context, string, models.Reading) (models.Reading, error) {
		return models.Reading{}, apperrors.NewStorageInsertFailedError(errors.New("connection refused"))
	}}
	s, _ := newTestServer(t, &MockReadings{}, ingest, nil)

	rec := do(t, s.Router(), http.MethodPost, "/api/upload", `{"temperature":28,"humidity":61,"tds":880,"ph":6.1}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Chat(t *testing.T) {
	assistant := &MockAssistant{ReplyFunc: func(_ context.Context, sessionID, message string) (models.ChatResponse, error) {
		if sessionID == "" {
			sessionID = "new-session"
		}
		return models.ChatResponse{Response: "echo: " + message, SessionID: sessionID}, nil
	}}
	s, _ := newTestServer(t, &MockReadings{}, &MockIngestor{}, assistant)
	h := s.Router()

	rec := do(t, h, http.MethodPost, "/api/chat", `{"message":"is my pH ok?","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp, err := models.ParseChatResponse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "echo: is my pH ok?", resp.Response)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "abc", raw["session_id"])

	for _, body := range []string{`{"message":"   "}`, `{"msg":"hi"}`, `not json`} {
		rec = do(t, h, http.MethodPost, "/api/chat", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestServer_ChatAssistantTimeout(t *testing.T) {
	assistant := &MockAssistant{ReplyFunc: func(context.Context, string, string) (models.ChatResponse, error) {
		return models.ChatResponse{}, apperrors.NewAssistantTimeoutError()
	}}
	s, _ := newTestServer(t, &MockReadings{}, &MockIngestor{}, assistant)

	rec := do(t, s.Router(), http.MethodPost, "/api/chat", `{"message":"hello"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestServer_Ready(t *testing.T) {
	healthy, _ := newTestServer(t, &MockReadings{}, &MockIngestor{}, nil,
		WithReadinessCheck("postgres", func(context.Context) error { return nil }))
	rec := do(t, healthy.Router(), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	broken, _ := newTestServer(t, &MockReadings{}, &MockIngestor{}, nil,
		WithReadinessCheck("postgres", func(context.Context) error { return nil }),
		WithReadinessCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") }))
	rec = do(t, broken.Router(), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Contains(t, body.Checks["redis"], "refused")
}

func TestServer_CORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &MockReadings{}, &MockIngestor{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Stream(t *testing.T) {
	s, hub := newTestServer(t, &MockReadings{}, &MockIngestor{}, nil)
	hub.Broadcast(sample("2024-05-01T11:59:00Z", 25))

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	next := func(prefix string) string {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed")
				if strings.HasPrefix(line, prefix) {
					return strings.TrimPrefix(line, prefix)
				}
			case <-deadline:
				t.Fatalf("no line with prefix %q", prefix)
			}
		}
	}

	first, err := models.ParseReading([]byte(next("data: ")))
	require.NoError(t, err)
	assert.Equal(t, 25.0, first.Temperature)

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast(sample("2024-05-01T12:00:00Z", 26))
	second, err := models.ParseReading([]byte(next("data: ")))
	require.NoError(t, err)
	assert.Equal(t, 26.0, second.Temperature)

	next(": keep-alive")

	cancel()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(1)
	events, unsubscribe := hub.Subscribe()

	hub.Broadcast(sample("2024-05-01T11:00:00Z", 20))
	hub.Broadcast(sample("2024-05-01T11:01:00Z", 21))

	got := <-events
	assert.Equal(t, 20.0, got.Temperature)
	latest, ok := hub.Latest()
	require.True(t, ok)
	assert.Equal(t, 21.0, latest.Temperature)

	unsubscribe()
	unsubscribe()
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, hub.Clients())
}
