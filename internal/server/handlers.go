// internal/server/handlers.go
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	apperrors "ihydro/internal/common/errors"
	"ihydro/internal/common/schema"
	"ihydro/internal/ingest"
	"ihydro/internal/models"
)

const maxUploadBytes = 64 << 10

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "iHydro server is running")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.cache != nil {
		reading, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.logger.Warn("latest cache unavailable", map[string]interface{}{"error": err})
		}
		if ok {
			writeJSON(w, http.StatusOK, reading)
			return
		}
	}

	reading, err := s.readings.Latest(ctx)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.config.HistoryDefault
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.errors.WriteHTTP(w, r, apperrors.NewInvalidRequestError("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > s.config.HistoryMax {
		limit = s.config.HistoryMax
	}

	history, err := s.readings.History(r.Context(), limit)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := models.ParseRange(mux.Vars(r)["range"])
	if err != nil {
		s.errors.WriteHTTP(w, r, apperrors.NewInvalidRangeError(err.Error()))
		return
	}

	from, to, err := s.window(rng, r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}

	summary, err := s.readings.SummaryBetween(r.Context(), string(rng), from, to)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// window resolves the time bounds of a summary request.
func (s *Server) window(rng models.Range, r *http.Request) (time.Time, time.Time, error) {
	now := s.now().UTC()
	if rng != models.RangeCustom {
		return now.Add(-rng.Window()), now, nil
	}

	q := r.URL.Query()
	if q.Get("from") == "" {
		return time.Time{}, time.Time{}, apperrors.NewInvalidRangeError("custom range requires from")
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.NewInvalidRangeError("from must be RFC3339")
	}
	to := now
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return time.Time{}, time.Time{}, apperrors.NewInvalidRangeError("to must be RFC3339")
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, apperrors.NewInvalidRangeError("to is before from")
	}
	return from, to, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		s.errors.WriteHTTP(w, r, apperrors.NewInvalidRequestError("no data"))
		return
	}

	reading, err := ingest.DecodeUpload(body, s.now())
	if err != nil {
		s.logger.Warn("rejected upload", map[string]interface{}{
			"path":  schema.Path(err),
			"error": err,
		})
		s.errors.WriteHTTP(w, r, err)
		return
	}

	reading, err = s.ingest.Accept(r.Context(), ingest.IngressUpload, reading)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "reading": reading})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		s.errors.WriteHTTP(w, r, apperrors.NewInvalidRequestError("unreadable body"))
		return
	}

	req, err := decodeChatRequest(body)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}

	resp, err := s.assistant.Reply(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeChatRequest(body []byte) (models.ChatRequest, error) {
	req, err := schema.DecodeJSON[models.ChatRequest](models.ChatRequestSchema, body)
	if err != nil {
		if errors.Is(err, schema.ErrMalformedJSON) {
			return req, apperrors.NewInvalidRequestError("body must be JSON")
		}
		return req, apperrors.NewInvalidRequestError(err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return req, apperrors.NewInvalidRequestError("message is empty")
	}

	var extra struct {
		SessionID string `json:"session_id"`
	}
	if json.Unmarshal(body, &extra) == nil {
		req.SessionID = extra.SessionID
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
