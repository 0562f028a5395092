// Package metrics holds the prometheus collectors for resolution, URL probing and recovery.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResolutionsTotal counts resolver outcomes per profile. Outcome is "resolved", "cached" or a failure kind.
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytplay_resolutions_total",
		Help: "Stream resolutions by profile and outcome",
	}, []string{"profile", "outcome"})

	// ResolveDuration tracks the wall time of a full resolution, cache hits excluded.
	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ytplay_resolve_duration_seconds",
		Help:    "Time taken to resolve a stream URL",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	})

	// URLProbesTotal counts validation probes by result.
	URLProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytplay_url_probes_total",
		Help: "Stream URL validation probes by result",
	}, []string{"result"})

	// RecoveryActionsTotal counts recovery decisions by error category and action.
	RecoveryActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytplay_recovery_actions_total",
		Help: "Playback recovery actions by category and action",
	}, []string{"category", "action"})

	// ConsecutiveFailures mirrors the session's consecutive failure counter.
	ConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytplay_consecutive_failures",
		Help: "Current consecutive playback failure count",
	})
)

// RecordResolution increments the resolution counter.
func RecordResolution(profile, outcome string) {
	ResolutionsTotal.WithLabelValues(profile, outcome).Inc()
}

// ObserveResolveDuration records how long a resolution took.
func ObserveResolveDuration(d time.Duration) {
	ResolveDuration.Observe(d.Seconds())
}

// RecordProbe increments the probe counter.
func RecordProbe(ok bool) {
	URLProbesTotal.WithLabelValues(strconv.FormatBool(ok)).Inc()
}

// RecordRecovery increments the recovery counter.
func RecordRecovery(category, action string) {
	RecoveryActionsTotal.WithLabelValues(category, action).Inc()
}

// SetConsecutiveFailures sets the consecutive failure gauge.
func SetConsecutiveFailures(n int) {
	ConsecutiveFailures.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
