// internal/alerts/evaluate.go
package alerts

import (
	"fmt"
	"strconv"

	"ihydro/internal/models"
	"ihydro/pkg/thresholds"
)

const (
	DirectionLow  = "low"
	DirectionHigh = "high"
)

// Alert describes one metric outside its recommended range.
type Alert struct {
	Metric    models.Metric    `json:"metric"`
	Value     float64          `json:"value"`
	Range     thresholds.Range `json:"range"`
	Direction string           `json:"direction"`
	Message   string           `json:"message"`
}

// Evaluate returns one alert per out-of-range metric, in the order of
// models.AllMetrics. Metrics without a configured range are not checked.
func Evaluate(r models.Reading, reg *thresholds.Registry) []Alert {
	var out []Alert
	for _, m := range models.AllMetrics {
		rg, ok := reg.Lookup(m)
		if !ok {
			continue
		}
		v := r.Value(m)
		if rg.Contains(v) {
			continue
		}
		dir := DirectionHigh
		if v < rg.Min {
			dir = DirectionLow
		}
		out = append(out, Alert{
			Metric:    m,
			Value:     v,
			Range:     rg,
			Direction: dir,
			Message:   message(m, v, rg),
		})
	}
	return out
}

// Messages returns the alert messages in order.
func Messages(alerts []Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Message
	}
	return out
}

func message(m models.Metric, v float64, rg thresholds.Range) string {
	label := rg.Label
	if label == "" {
		label = string(m)
	}
	return fmt.Sprintf("%s %s outside recommended range (%s-%s)",
		label,
		withUnit(formatNumber(v), rg.Unit),
		formatNumber(rg.Min),
		withUnit(formatNumber(rg.Max), rg.Unit),
	)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// withUnit attaches symbol units directly and word units after a space.
func withUnit(v, unit string) string {
	switch unit {
	case "":
		return v
	case "%", "°C", "°F":
		return v + unit
	}
	return v + " " + unit
}
