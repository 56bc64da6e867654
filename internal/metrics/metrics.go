// Package metrics defines the Prometheus collectors for the alert service and
// the scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. Each instance owns its registry so tests can
// build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	PostsReceivedTotal  *prometheus.CounterVec
	GroupDeliveryTotal  *prometheus.CounterVec
	FanOutDuration      prometheus.Histogram
	MatchedSubscribers  prometheus.Histogram
	DeliveryGuardDenied *prometheus.CounterVec

	MonitorCyclesTotal  *prometheus.CounterVec
	GroupsBoundTotal    prometheus.Counter
	InvitesTotal        *prometheus.CounterVec
	IncompleteGroups    prometheus.Gauge
	OrphanedGroups      prometheus.Gauge
	BroadcastsSentTotal *prometheus.CounterVec
	BackupsTotal        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PostsReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_posts_received_total",
				Help: "Posts received on the ingress by outcome (processed, duplicate, error).",
			},
			[]string{"outcome"},
		),
		GroupDeliveryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_group_deliveries_total",
				Help: "Post deliveries to groups by result (success, failed, skipped).",
			},
			[]string{"result"},
		),
		FanOutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alerts_fanout_duration_seconds",
				Help:    "Time spent matching and delivering one post.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		MatchedSubscribers: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "alerts_matched_subscribers",
				Help:    "Subscribers matched per post.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		DeliveryGuardDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_delivery_guard_denied_total",
				Help: "Deliveries refused before sending by reason (circuit_open, rate_limited).",
			},
			[]string{"reason"},
		),
		MonitorCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_monitor_cycles_total",
				Help: "Group reconciliation cycles by outcome (idle, completed, exhausted, error).",
			},
			[]string{"outcome"},
		),
		GroupsBoundTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "alerts_groups_bound_total",
				Help: "Subscribers bound to a group by the reconciliation loop.",
			},
		),
		InvitesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_invites_total",
				Help: "Invitation deliveries by result (success, failed).",
			},
			[]string{"result"},
		),
		IncompleteGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alerts_incomplete_groups",
				Help: "Groups missing a name or invite link at the last cycle.",
			},
		),
		OrphanedGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "alerts_orphaned_groups",
				Help: "Complete groups with no bound subscriber at the last cycle.",
			},
		),
		BroadcastsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_broadcast_messages_total",
				Help: "Admin broadcast messages by result (success, failed).",
			},
			[]string{"result"},
		),
		BackupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alerts_backups_total",
				Help: "Database snapshots by result (success, failed).",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PostsReceivedTotal,
		m.GroupDeliveryTotal,
		m.FanOutDuration,
		m.MatchedSubscribers,
		m.DeliveryGuardDenied,
		m.MonitorCyclesTotal,
		m.GroupsBoundTotal,
		m.InvitesTotal,
		m.IncompleteGroups,
		m.OrphanedGroups,
		m.BroadcastsSentTotal,
		m.BackupsTotal,
	)

	return m
}

// Handler returns the scrape handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
