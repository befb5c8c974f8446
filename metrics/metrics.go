package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics for the local web gateway
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fwvoice_http_requests_total",
			Help: "Total number of HTTP requests served by the gateway",
		},
		[]string{"method", "endpoint", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fwvoice_http_request_duration_seconds",
			Help:    "Gateway HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Commands sent to the firewall controller
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fwvoice_commands_total",
			Help: "Total number of commands sent, by outcome",
		},
		[]string{"outcome"}, // ok, timeout, transport, server, canceled
	)

	CommandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fwvoice_command_duration_seconds",
			Help:    "Round trip time of a command in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fwvoice_active_sessions",
			Help: "Number of logged-in sessions",
		},
	)

	TranscriptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fwvoice_transcript_entries_total",
			Help: "Total number of transcript entries appended",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fwvoice_ws_active_streams",
			Help: "Number of open websocket transcript streams",
		},
	)
)

// ObserveCommand records one finished command.
func ObserveCommand(outcome string, seconds float64) {
	CommandsTotal.WithLabelValues(outcome).Inc()
	CommandDuration.Observe(seconds)
}
