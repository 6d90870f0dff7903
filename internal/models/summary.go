package models

// SummaryStat holds aggregate values for one metric. Fields are nil when the
// window contains no readings.
type SummaryStat struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Avg *float64 `json:"avg"`
}

type MetricStats struct {
	Temperature SummaryStat `json:"temperature"`
	Humidity    SummaryStat `json:"humidity"`
	TDS         SummaryStat `json:"tds"`
	PH          SummaryStat `json:"ph"`
}

// Get returns the stat for m.
func (s MetricStats) Get(m Metric) SummaryStat {
	switch m {
	case MetricTemperature:
		return s.Temperature
	case MetricHumidity:
		return s.Humidity
	case MetricTDS:
		return s.TDS
	case MetricPH:
		return s.PH
	}
	return SummaryStat{}
}

// Set replaces the stat for m.
func (s *MetricStats) Set(m Metric, stat SummaryStat) {
	switch m {
	case MetricTemperature:
		s.Temperature = stat
	case MetricHumidity:
		s.Humidity = stat
	case MetricTDS:
		s.TDS = stat
	case MetricPH:
		s.PH = stat
	}
}

type Summary struct {
	Range string      `json:"range"`
	Count int         `json:"count"`
	Stats MetricStats `json:"stats"`
}
