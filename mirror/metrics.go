package mirror

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// lastSyncTimestamp is a Gauge that captures the timestamp of the last
	// successful release sync
	lastSyncTimestamp *prometheus.GaugeVec
	// syncCount is a Counter vector of release syncs
	syncCount *prometheus.CounterVec
	// syncLatency is a Histogram vector that keeps track of repo sync durations
	syncLatency *prometheus.HistogramVec
	// releaseDownloadCount is a Counter vector of downloaded releases
	releaseDownloadCount *prometheus.CounterVec
)

// EnableMetrics will enable metrics collection for release syncs.
// Available metrics are...
//   - release_last_sync_timestamp - (tags: repo)
//     A Gauge that captures the Timestamp of the last successful sync per repo.
//   - release_sync_count - (tags: repo,success)
//     A Counter for each repo sync, incremented with each sync attempt and tagged with the result (success=true|false)
//   - release_sync_latency_seconds - (tags: repo)
//     A Histogram that keeps track of the sync latency per repo.
//   - release_download_count - (tags: repo)
//     A Counter incremented for every release downloaded into the destination tree.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	lastSyncTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "release_last_sync_timestamp",
		Help:      "Timestamp of the last successful release sync",
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	syncCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "release_sync_count",
		Help:      "Count of release sync operations",
	},
		[]string{
			// name of the repository
			"repo",
			// Whether the sync was successful or not
			"success",
		},
	)

	syncLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "release_sync_latency_seconds",
		Help:      "Latency for repo release sync",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	releaseDownloadCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "release_download_count",
		Help:      "Count of releases downloaded into the destination tree",
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	registerer.MustRegister(
		lastSyncTimestamp,
		syncCount,
		syncLatency,
		releaseDownloadCount,
	)
}

// recordSync records a repository sync attempt by updating all the
// relevant metrics
func recordSync(repo string, success bool) {
	// if metrics not enabled return
	if lastSyncTimestamp == nil || syncCount == nil {
		return
	}
	if success {
		lastSyncTimestamp.With(prometheus.Labels{
			"repo": repo,
		}).Set(float64(time.Now().Unix()))
	}
	syncCount.With(prometheus.Labels{
		"repo":    repo,
		"success": strconv.FormatBool(success),
	}).Inc()
}

func recordReleaseDownload(repo string) {
	// if metrics not enabled return
	if releaseDownloadCount == nil {
		return
	}
	releaseDownloadCount.WithLabelValues(repo).Inc()
}

func updateSyncLatency(repo string, start time.Time) {
	// if metrics not enabled return
	if syncLatency == nil {
		return
	}
	syncLatency.WithLabelValues(repo).Observe(time.Since(start).Seconds())
}
