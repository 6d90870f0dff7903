// internal/monitor/config.go
package monitor

import (
	"time"

	"ihydro/internal/common/config"
)

type Config struct {
	Interval     time.Duration
	HistoryLimit int
	SnapshotTTL  time.Duration
	Alerts       bool
}

func LoadConfig(cfg *config.Config) *Config {
	return &Config{
		Interval:     config.GetDuration(cfg.Monitor.Interval),
		HistoryLimit: cfg.Monitor.HistoryLimit,
		SnapshotTTL:  config.GetDuration(cfg.Monitor.SnapshotTTL),
		Alerts:       cfg.Monitor.Alerts,
	}
}
