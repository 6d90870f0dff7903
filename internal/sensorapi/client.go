// internal/sensorapi/client.go
package sensorapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "ihydro/internal/common/errors"
	commonhttp "ihydro/internal/common/http"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/metrics"
	"ihydro/internal/common/observability"
	"ihydro/internal/common/schema"
	"ihydro/internal/models"
)

const (
	EndpointSensors = "sensors"
	EndpointHistory = "history"
	EndpointSummary = "summary"
	EndpointChat    = "chat"

	maxBodyBytes = 4 << 20
)

// Window bounds a custom summary. A zero To means "now" on the server.
type Window struct {
	From time.Time
	To   time.Time
}

// Client fetches and validates sensor API payloads. Every response body is
// checked against its schema before it is returned.
type Client struct {
	config *Config
	http   *commonhttp.Client
	logger logger.Logger
	obs    *observability.Observability
}

func NewClient(cfg *Config, log logger.Logger, obs *observability.Observability) *Client {
	return &Client{
		config: cfg,
		http:   commonhttp.NewClient(cfg.Timeout, commonhttp.WithRetries(cfg.MaxRetries, 100*time.Millisecond)),
		logger: log.WithFields(map[string]interface{}{"component": "sensor-api"}),
		obs:    obs,
	}
}

// Current returns the latest reading.
func (c *Client) Current(ctx context.Context) (models.Reading, error) {
	return fetch[models.Reading](ctx, c, EndpointSensors, "/api/sensors", nil, models.ReadingSchema)
}

// History returns up to limit of the most recent readings, oldest first.
func (c *Client) History(ctx context.Context, limit int) ([]models.Reading, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	history, err := fetch[[]models.Reading](ctx, c, EndpointHistory, "/api/history", q, models.HistorySchema)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// Summary returns aggregates for r. Custom ranges require w.
func (c *Client) Summary(ctx context.Context, r models.Range, w *Window) (models.Summary, error) {
	if _, err := models.ParseRange(string(r)); err != nil {
		return models.Summary{}, apperrors.NewInvalidRangeError(err.Error())
	}

	q := url.Values{}
	if r == models.RangeCustom {
		if w == nil || w.From.IsZero() {
			return models.Summary{}, apperrors.NewInvalidRangeError("custom range requires a start time")
		}
		q.Set("from", w.From.UTC().Format(time.RFC3339))
		if !w.To.IsZero() {
			q.Set("to", w.To.UTC().Format(time.RFC3339))
		}
	}
	return fetch[models.Summary](ctx, c, EndpointSummary, "/api/summary/"+string(r), q, models.SummarySchema)
}

// Chat sends a question to the assistant. It is attempted once; the caller
// decides whether to resend.
func (c *Client) Chat(ctx context.Context, message, sessionID string) (models.ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return models.ChatResponse{}, apperrors.NewInvalidRequestError("message is empty")
	}

	body, err := json.Marshal(models.ChatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return models.ChatResponse{}, fmt.Errorf("encode chat request: %w", err)
	}

	resp, err := c.send(ctx, EndpointChat, func(ctx context.Context) (*http.Response, error) {
		req, err := commonhttp.NewJSONRequest(ctx, http.MethodPost, c.config.BaseURL+"/api/chat", body)
		if err != nil {
			return nil, err
		}
		return c.http.Do(req)
	})
	if err != nil {
		return models.ChatResponse{}, err
	}

	out, data, err := decode[models.ChatResponse](c, EndpointChat, "/api/chat", resp, models.ChatResponseSchema)
	if err != nil {
		return out, err
	}

	// session_id is optional and not part of the validated shape.
	var extra struct {
		SessionID string `json:"session_id"`
	}
	if json.Unmarshal(data, &extra) == nil && extra.SessionID != "" {
		out.SessionID = extra.SessionID
	} else {
		out.SessionID = sessionID
	}
	return out, nil
}

func fetch[T any](ctx context.Context, c *Client, endpoint, path string, q url.Values, s *schema.Schema) (T, error) {
	var zero T
	target := c.config.BaseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	resp, err := c.send(ctx, endpoint, func(ctx context.Context) (*http.Response, error) {
		return c.http.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
			return commonhttp.NewJSONRequest(ctx, http.MethodGet, target, nil)
		}, commonhttp.RetryServerErrors)
	})
	if err != nil {
		return zero, err
	}
	out, _, err := decode[T](c, endpoint, path, resp, s)
	return out, err
}

// send performs the request inside a span and maps transport failures and
// non-2xx statuses to StandardErrors. The returned response has a 2xx status.
func (c *Client) send(ctx context.Context, endpoint string, do func(context.Context) (*http.Response, error)) (*http.Response, error) {
	ctx, span := c.obs.StartSpan(ctx, "sensorapi."+endpoint, attribute.String("endpoint", endpoint))
	defer span.End()

	start := time.Now()
	resp, err := do(ctx)
	metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "unavailable").Inc()
		span.SetStatus(codes.Error, err.Error())
		return nil, apperrors.NewSensorAPIUnavailableError(endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		metrics.APIRequests.WithLabelValues(endpoint, "status").Inc()
		span.SetStatus(codes.Error, resp.Status)
		return nil, apperrors.NewSensorAPIStatusError(endpoint, resp.StatusCode, string(text))
	}
	return resp, nil
}

func decode[T any](c *Client, endpoint, path string, resp *http.Response, s *schema.Schema) (T, []byte, error) {
	var zero T
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "unavailable").Inc()
		return zero, nil, apperrors.NewSensorAPIUnavailableError(endpoint, err)
	}

	out, err := schema.DecodeJSON[T](s, data)
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "invalid").Inc()
		metrics.ValidationFailures.WithLabelValues(endpoint).Inc()
		c.logger.Warn("response failed validation", map[string]interface{}{
			"endpoint": path,
			"path":     schema.Path(err),
			"error":    err.Error(),
		})
		return zero, data, apperrors.NewResponseInvalidError(path, err)
	}

	metrics.APIRequests.WithLabelValues(endpoint, "ok").Inc()
	return out, data, nil
}
