/*
Package metrics exports fluxion's Prometheus collectors: match
outcomes, planner search cost, and the live vertex/job counts that
pkg/perfstats's Welford series don't capture on their own (those are
returned directly over stats-get; these are the always-on gauges a
scrape target wants).
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluxion_matches_total",
			Help: "Total match attempts by op and outcome",
		},
		[]string{"op", "status"},
	)

	MatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fluxion_match_duration_seconds",
			Help:    "Wall time spent inside traverser.Run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	MatchIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fluxion_match_iterations",
			Help:    "avail_time_next probes per match attempt",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
	)

	VerticesUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluxion_vertices_up",
			Help: "Number of graph vertices currently up",
		},
	)

	VerticesDown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluxion_vertices_down",
			Help: "Number of graph vertices currently down",
		},
	)

	JobsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fluxion_jobs",
			Help: "Live jobs by state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(MatchesTotal)
	prometheus.MustRegister(MatchDuration)
	prometheus.MustRegister(MatchIterations)
	prometheus.MustRegister(VerticesUp)
	prometheus.MustRegister(VerticesDown)
	prometheus.MustRegister(JobsByState)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one operation and reports it against a histogram on Stop.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
