// internal/server/config.go
package server

import (
	"time"

	"ihydro/internal/common/config"
)

type Config struct {
	HistoryDefault int
	HistoryMax     int
	// KeepAlive is the interval of comment frames on idle streams.
	KeepAlive   time.Duration
	CORSOrigins []string
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		HistoryDefault: cfg.Server.HistoryDefault,
		HistoryMax:     cfg.Server.HistoryMax,
		KeepAlive:      config.GetDuration(cfg.Server.StreamInterval),
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
}
