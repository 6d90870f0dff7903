// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_api_requests_total",
			Help: "Sensor API requests issued by the monitor",
		},
		[]string{"endpoint", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hydro_api_request_duration_seconds",
			Help:    "Duration of sensor API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_validation_failures_total",
			Help: "Payloads rejected by schema validation",
		},
		[]string{"payload"},
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_poll_cycles_total",
			Help: "Completed poll cycles by result",
		},
		[]string{"result"},
	)

	PollSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hydro_poll_skipped_total",
			Help: "Refresh requests skipped because a cycle was in flight",
		},
	)

	MonitorOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydro_monitor_online",
			Help: "1 when the last poll cycle succeeded",
		},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_stream_events_total",
			Help: "Streamed reading events by source and result",
		},
		[]string{"source", "result"},
	)

	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_readings_ingested_total",
			Help: "Readings accepted by the API server by ingress",
		},
		[]string{"ingress"},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_sink_failures_total",
			Help: "Fan-out sink failures while ingesting readings",
		},
		[]string{"sink"},
	)

	ActiveAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hydro_active_alerts",
			Help: "1 when the metric is outside its recommended range",
		},
		[]string{"metric"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hydro_notifications_total",
			Help: "Alert notifications by channel and status",
		},
		[]string{"channel", "status"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hydro_stream_clients",
			Help: "Connected server-sent event clients",
		},
	)
)
