package metric

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgepub/errors"
)

func gatheredNames(t *testing.T, registry *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
	assert.NotNil(t, registry.CoreMetrics())
}

func TestMetricsRegistry_Register(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "A test histogram"})
	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_counter_vec", Help: "vec"}, []string{"k"})
	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gauge_vec", Help: "vec"}, []string{"k"})

	require.NoError(t, registry.RegisterCounter("svc", "counter", counter))
	require.NoError(t, registry.RegisterGauge("svc", "gauge", gauge))
	require.NoError(t, registry.RegisterHistogram("svc", "histogram", histogram))
	require.NoError(t, registry.RegisterCounterVec("svc", "counter_vec", counterVec))
	require.NoError(t, registry.RegisterGaugeVec("svc", "gauge_vec", gaugeVec))

	counter.Inc()
	gauge.Set(42)
	histogram.Observe(1.5)
	counterVec.WithLabelValues("a").Inc()
	gaugeVec.WithLabelValues("a").Set(1)

	names := gatheredNames(t, registry)
	for _, name := range []string{"test_counter", "test_gauge", "test_histogram", "test_counter_vec", "test_gauge_vec"} {
		assert.True(t, names[name], "%s should be registered", name)
	}
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "duplicate_counter", Help: "First counter"})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "duplicate_counter", Help: "First counter"})

	require.NoError(t, registry.RegisterCounter("owner1", "duplicate_counter", counter1))

	// same key is caught by our own bookkeeping
	err := registry.RegisterCounter("owner1", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "duplicate metric registration")

	// different key, same collector description, is caught by prometheus
	err = registry.RegisterCounter("owner2", "duplicate_counter", counter2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "unregister_counter", Help: "A counter to unregister"})
	require.NoError(t, registry.RegisterCounter("svc", "unregister_counter", counter))
	assert.True(t, gatheredNames(t, registry)["unregister_counter"])

	assert.True(t, registry.Unregister("svc", "unregister_counter"))
	assert.False(t, gatheredNames(t, registry)["unregister_counter"])
	assert.False(t, registry.Unregister("svc", "unregister_counter"))

	// can register again after removal
	require.NoError(t, registry.RegisterCounter("svc", "unregister_counter", counter))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})
			assert.NoError(t, registry.RegisterCounter("concurrent", fmt.Sprintf("counter_%d", id), counter))
		}(i)
	}
	wg.Wait()

	count := 0
	for name := range gatheredNames(t, registry) {
		if strings.HasPrefix(name, "concurrent_counter_") {
			count++
		}
	}
	assert.Equal(t, numGoroutines, count)
}

func TestMetricsRegistrar_Interface(t *testing.T) {
	var registrar MetricsRegistrar = NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "interface_counter", Help: "via interface"})
	require.NoError(t, registrar.RegisterCounter("iface", "interface_counter", counter))
}

func TestCoreMetrics_Recorded(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordPublished("c1", 3)
	m.RecordPublished("c1", 4)
	m.RecordDelivered("c1", 20*time.Millisecond, 3)
	m.RecordPublishFailure("c1", "transient", 1)
	m.RecordPublishFailure("c1", "transient", 2)
	m.RecordOverflowDrop("c1")
	m.RecordReconnect("c1", "forced")
	m.RecordSessionEvent("c1", "connect")
	m.RecordConnectionState("c1", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Published.WithLabelValues("c1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Delivered.WithLabelValues("c1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PublishFailures.WithLabelValues("c1", "transient")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetryState.WithLabelValues("c1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("c1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OverflowDrops.WithLabelValues("c1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues("c1", "forced")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectionState.WithLabelValues("c1")))

	names := gatheredNames(t, registry)
	for _, name := range []string{
		"edgepub_publish_accepted_total",
		"edgepub_publish_delivered_total",
		"edgepub_publish_failures_total",
		"edgepub_publish_overflow_drops_total",
		"edgepub_publish_delivery_duration_seconds",
		"edgepub_session_reconnects_total",
		"edgepub_session_events_total",
		"edgepub_session_state",
	} {
		assert.True(t, names[name], "%s should be exported", name)
	}
}

func TestCoreMetrics_DeliveryHistogram(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()

	m.RecordDelivered("edge", 20*time.Millisecond, 0)
	m.RecordDelivered("edge", 3*time.Second, 0)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	mf := byName["edgepub_publish_delivery_duration_seconds"]
	require.NotNil(t, mf)
	require.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
	require.Len(t, mf.GetMetric(), 1)

	h := mf.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 3.02, h.GetSampleSum(), 1e-9)
	assert.Equal(t, "client", mf.GetMetric()[0].GetLabel()[0].GetName())
	assert.Equal(t, "edge", mf.GetMetric()[0].GetLabel()[0].GetValue())
}
