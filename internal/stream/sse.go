// internal/stream/sse.go
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/observability"
)

type SSEConfig struct {
	// URL of the event stream, usually <api base>/api/stream.
	URL     string
	Backoff Backoff
}

// SSESource reads readings from a server-sent event stream and reconnects
// when the connection drops.
type SSESource struct {
	config     *SSEConfig
	httpClient *http.Client
	logger     logger.Logger
	obs        *observability.Observability
}

func NewSSESource(cfg *SSEConfig, log logger.Logger, obs *observability.Observability) *SSESource {
	if cfg.Backoff.Min <= 0 {
		cfg.Backoff.Min = 500 * time.Millisecond
	}
	if cfg.Backoff.Max < cfg.Backoff.Min {
		cfg.Backoff.Max = 30 * time.Second
	}
	return &SSESource{
		config:     cfg,
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		logger:     log.WithFields(map[string]interface{}{"component": "sse-source", "url": cfg.URL}),
		obs:        obs,
	}
}

func (s *SSESource) Name() string { return SourceSSE }

// Run consumes the stream until ctx is cancelled or h returns an error.
func (s *SSESource) Run(ctx context.Context, h Handler) error {
	defer s.httpClient.CloseIdleConnections()

	attempt := 0
	for {
		delivered, err := s.consume(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var herr handlerError
		if errors.As(err, &herr) {
			return herr.err
		}
		if delivered {
			attempt = 0
		}
		attempt++

		wait := s.config.Backoff.delay(attempt)
		s.logger.Warn("stream disconnected, reconnecting", map[string]interface{}{
			"error":   apperrors.NewStreamDisconnectedError(SourceSSE, err),
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		})
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type handlerError struct{ err error }

func (e handlerError) Error() string { return e.err.Error() }

// consume holds one connection. delivered reports whether any event was
// received, which resets the reconnect backoff.
func (s *SSESource) consume(ctx context.Context, h Handler) (delivered bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.URL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	s.logger.Info("stream connected", nil)

	err = readEvents(resp.Body, func(data string) error {
		delivered = true
		if err := deliver(ctx, SourceSSE, []byte(data), h, s.logger, s.obs); err != nil {
			return handlerError{err}
		}
		return nil
	})
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return delivered, err
}

// readEvents splits an event stream into event payloads. Multiple data lines
// of one event are joined with newlines; comments and other fields are
// ignored. It returns nil at EOF.
func readEvents(r io.Reader, emit func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data strings.Builder
	hasData := false

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			if hasData {
				if err := emit(data.String()); err != nil {
					return err
				}
			}
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		if hasData {
			data.WriteByte('\n')
		}
		data.WriteString(strings.TrimPrefix(value, " "))
		hasData = true
	}
	return scanner.Err()
}
