// internal/assistant/assistant.go
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	apperrors "ihydro/internal/common/errors"
	commonhttp "ihydro/internal/common/http"
	"ihydro/internal/common/logger"
	"ihydro/internal/common/schema"
	"ihydro/internal/models"
)

const (
	SystemPrompt  = "You are iHydro AI assistant for a hydroponic grow system. Give short, friendly answers about temperature, humidity, TDS and pH."
	FallbackReply = "The AI assistant is not available right now, please try again in a moment."
)

// Memory persists conversation turns per session.
type Memory interface {
	Append(ctx context.Context, sessionID string, msg models.ChatMessage) error
	History(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
}

var completionSchema = schema.Object(
	schema.F("choices", schema.Array(schema.Object(
		schema.F("message", schema.Object(
			schema.F("content", schema.String()),
		)),
	))),
)

type completion struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type completionRequest struct {
	Model     string               `json:"model"`
	Messages  []models.ChatMessage `json:"messages"`
	MaxTokens int                  `json:"max_tokens,omitempty"`
}

// Assistant answers grower questions through an OpenAI-compatible chat
// completions endpoint, remembering the last few turns of each session.
type Assistant struct {
	config *Config
	http   *commonhttp.Client
	memory Memory
	logger logger.Logger
	newID  func() string
}

func New(cfg *Config, memory Memory, log logger.Logger) *Assistant {
	return &Assistant{
		config: cfg,
		// The request context carries the deadline.
		http:   commonhttp.NewClient(0, commonhttp.WithRetries(cfg.MaxRetries, 500*time.Millisecond)),
		memory: memory,
		logger: log.WithFields(map[string]interface{}{"component": "assistant", "model": cfg.Model}),
		newID:  uuid.NewString,
	}
}

// Reply answers message within sessionID, starting a session when it is
// empty. When the model cannot be reached the fallback reply is returned
// with a nil error; the failure is logged.
func (a *Assistant) Reply(ctx context.Context, sessionID, message string) (models.ChatResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return models.ChatResponse{}, apperrors.NewInvalidRequestError("message is empty")
	}
	if sessionID == "" {
		sessionID = a.newID()
	}

	history := a.history(ctx, sessionID)
	user := models.ChatMessage{Role: models.RoleUser, Content: message}
	a.remember(ctx, sessionID, user)

	reply, err := a.Complete(ctx, append(history, user))
	if err != nil {
		a.logger.Error("assistant request failed", map[string]interface{}{
			"session_id": sessionID,
			"error":      err,
		})
		return models.ChatResponse{Response: FallbackReply, SessionID: sessionID}, nil
	}

	a.remember(ctx, sessionID, models.ChatMessage{Role: models.RoleAssistant, Content: reply})
	return models.ChatResponse{Response: reply, SessionID: sessionID}, nil
}

// Complete sends the conversation after the system prompt and returns the
// first choice. 503 responses, which the router returns while a model loads,
// are retried.
func (a *Assistant) Complete(ctx context.Context, conversation []models.ChatMessage) (string, error) {
	if a.config.APIKey == "" {
		return "", apperrors.NewAssistantUnavailableError(errors.New("no API key configured"))
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	messages := make([]models.ChatMessage, 0, len(conversation)+1)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: SystemPrompt})
	messages = append(messages, conversation...)

	body, err := json.Marshal(completionRequest{
		Model:     a.config.Model,
		Messages:  messages,
		MaxTokens: a.config.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	resp, err := a.http.DoWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := commonhttp.NewJSONRequest(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
		return req, nil
	}, func(status int) bool { return status == http.StatusServiceUnavailable })
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.NewAssistantTimeoutError()
		}
		return "", apperrors.NewAssistantUnavailableError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.NewAssistantTimeoutError()
		}
		return "", apperrors.NewAssistantUnavailableError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewAssistantUnavailableError(
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	out, err := schema.DecodeJSON[completion](completionSchema, data)
	if err != nil {
		return "", apperrors.NewAssistantUnavailableError(err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", apperrors.NewAssistantUnavailableError(errors.New("empty completion"))
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// history returns up to Memory-1 earlier turns so the new message completes
// the window.
func (a *Assistant) history(ctx context.Context, sessionID string) []models.ChatMessage {
	if a.memory == nil || a.config.Memory <= 1 {
		return nil
	}
	msgs, err := a.memory.History(ctx, sessionID, a.config.Memory-1)
	if err != nil {
		a.logger.Warn("failed to load chat history", map[string]interface{}{
			"session_id": sessionID,
			"error":      err,
		})
		return nil
	}
	return msgs
}

func (a *Assistant) remember(ctx context.Context, sessionID string, msg models.ChatMessage) {
	if a.memory == nil {
		return
	}
	if err := a.memory.Append(ctx, sessionID, msg); err != nil {
		a.logger.Warn("failed to store chat message", map[string]interface{}{
			"session_id": sessionID,
			"role":       msg.Role,
			"error":      err,
		})
	}
}
