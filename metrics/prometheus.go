// Package metrics exposes a cqrskit.LagRecorder backed by
// prometheus/client_golang, so an Application can chart a processor's
// backlog and staleness the way the teacher's distribution adapters
// expose publish/consume counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-gadgets/cqrskit"
)

// Recorder is a cqrskit.LagRecorder that publishes a processor's lag as
// two Prometheus gauges, labeled by processor name so one registry can
// back every processor an Application runs.
type Recorder struct {
	unprocessed *prometheus.GaugeVec
	meanAgeSecs *prometheus.GaugeVec
}

// NewRecorder creates a Recorder and registers its gauges with reg. Pass
// prometheus.DefaultRegisterer to publish on the process's default
// /metrics handler, or a fresh *prometheus.Registry in tests.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		unprocessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cqrskit",
			Subsystem: "processor",
			Name:      "unprocessed_events",
			Help:      "Number of events waiting on a processor's subscription, per the last lag measurement.",
		}, []string{"processor"}),
		meanAgeSecs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cqrskit",
			Subsystem: "processor",
			Name:      "mean_event_age_seconds",
			Help:      "Mean age in seconds of the events a processor dispatched in its last batch, per the last lag measurement.",
		}, []string{"processor"}),
	}
	if err := reg.Register(r.unprocessed); err != nil {
		return nil, err
	}
	if err := reg.Register(r.meanAgeSecs); err != nil {
		return nil, err
	}
	return r, nil
}

// Observe implements cqrskit.LagRecorder.
func (r *Recorder) Observe(processorName string, lag cqrskit.Lag) {
	r.unprocessed.WithLabelValues(processorName).Set(float64(lag.UnprocessedCount))
	r.meanAgeSecs.WithLabelValues(processorName).Set(lag.MeanAge.Seconds())
}
