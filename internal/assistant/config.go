// internal/assistant/config.go
package assistant

import (
	"time"

	"ihydro/internal/common/config"
)

type Config struct {
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Memory     int
	MaxTokens  int
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		BaseURL:    cfg.Assistant.BaseURL,
		Model:      cfg.Assistant.Model,
		APIKey:     cfg.Assistant.APIKey,
		Timeout:    config.GetDuration(cfg.Assistant.Timeout),
		MaxRetries: cfg.Assistant.MaxRetries,
		Memory:     cfg.Assistant.Memory,
		MaxTokens:  cfg.Assistant.MaxTokens,
	}
}
