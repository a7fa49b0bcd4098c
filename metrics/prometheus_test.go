package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-gadgets/cqrskit"
)

// TestRecorderObserveSetsGaugesPerProcessor checks that Observe publishes
// both gauges labeled by processor name, so two processors sharing one
// registry don't clobber each other's values.
func TestRecorderObserveSetsGaugesPerProcessor(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder, err := NewRecorder(reg)
	require.NoError(t, err)

	recorder.Observe("balances", cqrskit.Lag{UnprocessedCount: 7, MeanAge: 3 * time.Second})
	recorder.Observe("audit", cqrskit.Lag{UnprocessedCount: 2, MeanAge: time.Second})

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]map[string]float64{}
	for _, family := range families {
		byLabel := map[string]float64{}
		for _, metric := range family.GetMetric() {
			byLabel[labelValue(metric, "processor")] = metric.GetGauge().GetValue()
		}
		values[family.GetName()] = byLabel
	}

	assert.Equal(t, float64(7), values["cqrskit_processor_unprocessed_events"]["balances"])
	assert.Equal(t, float64(2), values["cqrskit_processor_unprocessed_events"]["audit"])
	assert.Equal(t, float64(3), values["cqrskit_processor_mean_event_age_seconds"]["balances"])
}

func labelValue(metric *io_prometheus_client.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}
