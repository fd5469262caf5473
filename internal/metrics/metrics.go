// Package metrics provides Prometheus instrumentation for the evolution
// appliance banner dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics (admin/metrics listener and CGI endpoint).
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evodispatch_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evodispatch_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Queue (WTC) metrics.
var (
	QueueWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evodispatch_queue_writes_total",
		Help: "Total number of envelopes written to the command queue.",
	}, []string{"command_type", "result"})

	QueueReadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evodispatch_queue_reads_total",
		Help: "Total number of queue read attempts.",
	}, []string{"command_type", "result"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evodispatch_queue_depth",
		Help: "Number of envelopes currently pending in the command queue.",
	})
)

// Dispatch metrics (per-device worker).
var (
	DispatchEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evodispatch_dispatch_events_total",
		Help: "Total number of dispatcher events handled, by command type and outcome.",
	}, []string{"command_type", "outcome"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evodispatch_dispatch_duration_seconds",
		Help:    "Time to handle one dispatcher event, from queue read to journal update.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command_type"})

	ActiveDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evodispatch_active_devices",
		Help: "Number of devices currently marked connection-active.",
	})
)

// Transport metrics (appliance HTTP client).
var (
	TransportAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evodispatch_transport_attempts_total",
		Help: "Total number of appliance transport attempts, by phase and outcome.",
	}, []string{"phase", "outcome"})

	TransportRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evodispatch_transport_retries_total",
		Help: "Total number of retried appliance transport phases.",
	}, []string{"phase"})
)

// Journal metrics.
var (
	JournalAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evodispatch_journal_appends_total",
		Help: "Total number of journal append operations, by outcome.",
	}, []string{"outcome"})

	JournalLines = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evodispatch_journal_lines",
		Help: "Number of active-message lines currently in a device's journal.",
	}, []string{"device_recno"})
)
