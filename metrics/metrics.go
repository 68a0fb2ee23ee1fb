package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for distfs metrics.
const (
	Fail = "fail"
	Ok   = "ok"

	Sent     = "sent"
	Received = "received"
)

// Collectors of the transfer channel, node handlers and the router.
var (
	PayloadBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distfs_payload_bytes_total",
		Help: "Cumulative number of raw payload bytes moved over transfer channels.",
	}, []string{"direction"})
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distfs_commands_total",
		Help: "Cumulative number of client commands served, by verb and outcome.",
	}, []string{"verb", "status"})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "distfs_sessions_active",
		Help: "Number of currently connected client sessions.",
	})
	BackendExchangeSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "distfs_backend_exchange_seconds",
		Help:    "Duration of delegated exchanges with a backend, including the wait for a pooled connection.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"backend", "verb", "status"})
	BackendConnsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "distfs_backend_conns_open",
		Help: "Number of open pooled connections to each backend.",
	}, []string{"backend"})
	ArchiveBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distfs_archive_builds_total",
		Help: "Cumulative number of archive builds, by keyword and outcome.",
	}, []string{"keyword", "status"})
)

// NodeCollectors returns collectors served by every node.
func NodeCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		PayloadBytesTotal,
		CommandsTotal,
		SessionsActive,
		ArchiveBuildsTotal,
	}
}

// RouterCollectors returns collectors specific to the router.
func RouterCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		BackendExchangeSeconds,
		BackendConnsOpen,
	}
}
