// internal/sensorapi/config.go
package sensorapi

import (
	"time"

	"ihydro/internal/common/config"
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    config.GetDuration(cfg.API.Timeout),
		MaxRetries: cfg.API.MaxRetries,
	}
}
