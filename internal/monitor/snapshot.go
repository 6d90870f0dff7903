// internal/monitor/snapshot.go
package monitor

import (
	"time"

	"ihydro/internal/alerts"
	"ihydro/internal/models"
)

// Snapshot is the monitor's view of the greenhouse after the latest cycle.
// Data fields keep their previous values when a cycle fails.
type Snapshot struct {
	Current   *models.Reading  `json:"current,omitempty"`
	History   []models.Reading `json:"history"`
	Hour      *models.Summary  `json:"hour,omitempty"`
	Day       *models.Summary  `json:"day,omitempty"`
	Alerts    []alerts.Alert   `json:"alerts"`
	Online    bool             `json:"online"`
	Loading   bool             `json:"loading"`
	UpdatedAt time.Time        `json:"updated_at"`
	LastError string           `json:"last_error,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.Current != nil {
		c := *s.Current
		out.Current = &c
	}
	out.History = append([]models.Reading(nil), s.History...)
	out.Alerts = append([]alerts.Alert(nil), s.Alerts...)
	return out
}
