package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsAlertsAndGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordAlert("routed", "high")
	r.RecordAlert("routed", "high")
	r.RecordAlert("deduplicated", "")
	r.SetPressureScore("BTC", 72.5)
	r.SetQueueDepth(3)
	r.RecordRecords("anomaly", "BTC", 0)
	r.RecordRecords("anomaly", "BTC", 4)
	r.RecordScan("pressure", "BTC", 2*time.Millisecond)
	r.RecordError("listener")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.alertsTotal.WithLabelValues("routed", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.alertsTotal.WithLabelValues("deduplicated", "none")))
	assert.Equal(t, 72.5, testutil.ToFloat64(r.pressureScore.WithLabelValues("BTC")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.queueDepth))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.recordsTotal.WithLabelValues("anomaly", "BTC")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("listener")))

	n, err := testutil.GatherAndCount(reg, "watchdog_scan_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
