// Package metrics exposes Prometheus collectors for the harvest run.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	harvestRowsTotal      prometheus.Counter
	harvestAttemptsTotal  prometheus.Counter
	harvestArtifactsTotal *prometheus.CounterVec
	harvestAttemptSeconds prometheus.Histogram
	planFlushesTotal      prometheus.Counter
	planURLsQueuedTotal   *prometheus.CounterVec
	downloadedFilesTotal  *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		harvestRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_rows_total",
			Help: "Total number of non-blank input rows processed.",
		})
		harvestAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "harvest_attempts_total",
			Help: "Total number of rows for which a driver attempt was dispatched.",
		})
		harvestArtifactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_artifacts_total",
				Help: "Artifact outcomes, labeled by artifact type and outcome.",
			},
			[]string{"artifact_type", "outcome"},
		)
		harvestAttemptSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_attempt_duration_seconds",
			Help:    "Wall time of one dispatched driver attempt.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		})
		planFlushesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "plan_flushes_total",
			Help: "Number of download plan files written.",
		})
		planURLsQueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_urls_queued_total",
				Help: "URLs offered to the download plan, labeled added or duplicate.",
			},
			[]string{"result"},
		)
		downloadedFilesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "download_files_total",
				Help: "Plan replay download outcomes, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
}

// RowProcessed counts one processed input row.
func RowProcessed() {
	if harvestRowsTotal != nil {
		harvestRowsTotal.Inc()
	}
}

// AttemptDispatched counts one driver dispatch and its duration.
func AttemptDispatched(elapsed time.Duration) {
	if harvestAttemptsTotal != nil {
		harvestAttemptsTotal.Inc()
		harvestAttemptSeconds.Observe(elapsed.Seconds())
	}
}

// ArtifactOutcome counts one per-type driver outcome ("success" or "failure").
func ArtifactOutcome(artifactType, outcome string) {
	if harvestArtifactsTotal != nil {
		harvestArtifactsTotal.WithLabelValues(artifactType, outcome).Inc()
	}
}

// PlanFlushed counts one written plan file.
func PlanFlushed() {
	if planFlushesTotal != nil {
		planFlushesTotal.Inc()
	}
}

// PlanURLs counts URLs offered to the accumulator.
func PlanURLs(added, duplicates int) {
	if planURLsQueuedTotal != nil {
		planURLsQueuedTotal.WithLabelValues("added").Add(float64(added))
		planURLsQueuedTotal.WithLabelValues("duplicate").Add(float64(duplicates))
	}
}

// FileDownloaded counts one replay download outcome ("ok", "skipped", "failed").
func FileDownloaded(outcome string) {
	if downloadedFilesTotal != nil {
		downloadedFilesTotal.WithLabelValues(outcome).Inc()
	}
}
