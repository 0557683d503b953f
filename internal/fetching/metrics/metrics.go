package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks completed fetch sessions per source and outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_fetches_total",
			Help: "Total number of completed fetch sessions",
		},
		[]string{"source", "outcome"},
	)

	// NetRetriesTotal tracks retries of spurious network errors
	NetRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_net_retries_total",
			Help: "Total number of spurious network error retries",
		},
		[]string{"source"},
	)

	// TransportErrorsTotal tracks transport failures by error kind
	TransportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_transport_errors_total",
			Help: "Total number of transport errors",
		},
		[]string{"source", "kind"},
	)

	// FetchLatency tracks fetch session latency
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetcher_fetch_latency_seconds",
			Help:    "Fetch session latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// BytesFetched tracks downloaded payload bytes
	BytesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetcher_bytes_fetched_total",
			Help: "Total number of payload bytes fetched",
		},
		[]string{"source"},
	)

	// FailedFetchQueueDepth tracks the replay queue depth
	FailedFetchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_failed_fetch_queue_depth",
			Help: "Number of failed fetches waiting for replay",
		},
	)

	// DBConnectionPoolUsage tracks database connection pool utilization
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fetcher_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)
)
