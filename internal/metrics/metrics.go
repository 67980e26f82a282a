// Package metrics provides Prometheus metrics for vaultsync.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VaultAPIRequestsTotal counts remote vault calls by method, endpoint and outcome.
	VaultAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultsync",
			Name:      "vault_api_requests_total",
			Help:      "Total number of remote vault API calls by outcome",
		},
		[]string{"method", "endpoint", "outcome"},
	)

	// VaultAPIRequestDuration tracks remote call latency.
	VaultAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vaultsync",
			Name:      "vault_api_request_duration_seconds",
			Help:      "Remote vault API call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// SyncRunsTotal counts sync passes by mode (full, incremental) and result.
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultsync",
			Name:      "sync_runs_total",
			Help:      "Total number of sync passes",
		},
		[]string{"mode", "result"},
	)

	// SyncItemsTotal counts items handled by sync passes by disposition
	// (written, skipped, unchanged).
	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultsync",
			Name:      "sync_items_total",
			Help:      "Total number of remote items processed by sync",
		},
		[]string{"mode", "disposition"},
	)

	// DivergencesTotal counts known local/remote inconsistency windows that
	// were left open (remote create without local insert, local delete without
	// remote delete).
	DivergencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultsync",
			Name:      "divergences_total",
			Help:      "Local and remote state left disagreeing after a partial failure",
		},
		[]string{"operation"},
	)

	// HTTPRequestsTotal counts local API requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vaultsync",
			Name:      "http_requests_total",
			Help:      "Total number of local API requests",
		},
		[]string{"method", "route", "status"},
	)
)
