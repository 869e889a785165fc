// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cems"

var (
	// RPCRequests counts finished RPCs. Labels: method, code.
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Total RPCs by method and status code",
	}, []string{"method", "code"})

	// RPCDuration measures handler latency. Labels: method.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "duration_seconds",
		Help:      "RPC handler latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	VersionsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "versions_appended_total",
		Help:      "Event snapshots written to the version ledger",
	})

	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rollbacks_total",
		Help:      "Events restored from a historical version",
	})

	GrantsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "grants_written_total",
		Help:      "Permission grants inserted or updated",
	})

	// CacheRequests counts read cache lookups. Labels: result (hit, miss).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Read cache lookups by result",
	}, []string{"result"})
)
