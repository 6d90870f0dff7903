package models

import (
	"fmt"
	"time"
)

type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricTDS         Metric = "tds"
	MetricPH          Metric = "ph"
)

// AllMetrics lists the monitored metrics in display order.
var AllMetrics = []Metric{MetricTemperature, MetricHumidity, MetricTDS, MetricPH}

// Reading is one sample from the grow bed.
type Reading struct {
	Timestamp   string  `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	TDS         float64 `json:"tds"`
	PH          float64 `json:"ph"`
}

// Value returns the reading's value for m.
func (r Reading) Value(m Metric) float64 {
	switch m {
	case MetricTemperature:
		return r.Temperature
	case MetricHumidity:
		return r.Humidity
	case MetricTDS:
		return r.TDS
	case MetricPH:
		return r.PH
	}
	return 0
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Time parses the reading timestamp. Devices report either RFC3339 or a naive
// ISO timestamp in UTC.
func (r Reading) Time() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", r.Timestamp)
}

// FormatTimestamp renders t in the format stored with readings.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
