// Package prometheus provides a latch.MetricsProvider implementation backed
// by Prometheus collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zoobzio/latch"
)

// Metrics adapts latch metrics callbacks to Prometheus collectors.
// All collectors carry the "latch_" prefix.
type Metrics struct {
	transitions     *prometheus.CounterVec
	loadDuration    *prometheus.HistogramVec
	feedRejections  *prometheus.CounterVec
	changesReceived prometheus.Counter
}

// New creates a Metrics provider and registers its collectors with reg.
// Pass prometheus.DefaultRegisterer to use the default registry.
//
//	m := prometheus.New(prometheus.DefaultRegisterer)
//	reg := latch.New().Metrics(m)
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "latch_operation_transitions_total",
			Help: "Effective call-state transitions by operation",
		}, []string{"operation", "from", "to"}),

		loadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "latch_operation_load_duration_seconds",
			Help:    "Time operations spent in the loading phase",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"operation", "outcome"}),

		feedRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "latch_feed_rejections_total",
			Help: "Status documents rejected during feeding",
		}, []string{"stage"}),

		changesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "latch_feed_changes_received_total",
			Help: "Raw status documents received from sources",
		}),
	}
}

// OnTransition implements latch.MetricsProvider.
func (m *Metrics) OnTransition(key string, from, to latch.Phase) {
	m.transitions.WithLabelValues(key, from.String(), to.String()).Inc()
}

// OnLoadSuccess implements latch.MetricsProvider.
func (m *Metrics) OnLoadSuccess(key string, duration time.Duration) {
	m.loadDuration.WithLabelValues(key, "loaded").Observe(duration.Seconds())
}

// OnLoadFailure implements latch.MetricsProvider.
func (m *Metrics) OnLoadFailure(key string, duration time.Duration) {
	m.loadDuration.WithLabelValues(key, "failed").Observe(duration.Seconds())
}

// OnFeedFailure implements latch.MetricsProvider.
func (m *Metrics) OnFeedFailure(stage string) {
	m.feedRejections.WithLabelValues(stage).Inc()
}

// OnChangeReceived implements latch.MetricsProvider.
func (m *Metrics) OnChangeReceived() {
	m.changesReceived.Inc()
}
