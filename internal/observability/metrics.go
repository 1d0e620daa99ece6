// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Download progress, labelled by wallet account
	SignaturesFetched    *prometheus.GaugeVec
	PositionsSeen        *prometheus.GaugeVec
	PositionTransactions *prometheus.GaugeVec
	UsdPositionsLoaded   *prometheus.GaugeVec
	DownloadSeconds      *prometheus.GaugeVec

	// Download lifecycle
	DownloadsRunning   prometheus.Gauge
	DownloadsCompleted prometheus.Counter
	DownloadsCancelled prometheus.Counter
	DownloadErrors     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dlmm_ledger"
	}

	return &Metrics{
		SignaturesFetched: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "signatures_fetched",
			Help:      "Number of account signatures fetched so far",
		}, []string{"account"}),
		PositionsSeen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "positions_seen",
			Help:      "Number of distinct positions observed so far",
		}, []string{"account"}),
		PositionTransactions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "position_transactions",
			Help:      "Number of distinct position transactions stored so far",
		}, []string{"account"}),
		UsdPositionsLoaded: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "usd_positions_loaded",
			Help:      "Number of positions with USD values loaded so far",
		}, []string{"account"}),
		DownloadSeconds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "elapsed_seconds",
			Help:      "Seconds elapsed since the download started",
		}, []string{"account"}),

		DownloadsRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "running",
			Help:      "Number of downloads currently in progress",
		}),
		DownloadsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "completed_total",
			Help:      "Total number of downloads that ran to completion",
		}),
		DownloadsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "cancelled_total",
			Help:      "Total number of downloads cancelled before completion",
		}),
		DownloadErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "download",
			Name:      "errors_total",
			Help:      "Total number of downloads that failed with an error",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")
