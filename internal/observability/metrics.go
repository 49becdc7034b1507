package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	skippedActivitiesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Subsystem: "dedupe",
		Name:      "skipped_activities_total",
		Help:      "Activity records excluded from deduplication because they were missing a subject id or category.",
	})
	linksPersistedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reconciliation",
		Subsystem: "matcher",
		Name:      "match_links_persisted_total",
		Help:      "Newly discovered event/activity links written back to the record store.",
	})
	lastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reconciliation",
		Subsystem: "pipeline",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed reconciliation run.",
	})
)

func init() {
	prometheus.MustRegister(skippedActivitiesCounter, linksPersistedCounter, lastRunGauge)
}

// RecordSkippedActivities counts malformed activity rows excluded by dedupe.
func RecordSkippedActivities(n int) {
	if n <= 0 {
		return
	}
	skippedActivitiesCounter.Add(float64(n))
}

// RecordLinksPersisted counts match links written back to the store.
func RecordLinksPersisted(n int) {
	if n <= 0 {
		return
	}
	linksPersistedCounter.Add(float64(n))
}

// RecordReconciliation updates the pipeline watermark gauge.
func RecordReconciliation(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastRunGauge.Set(float64(ts.Unix()))
}
