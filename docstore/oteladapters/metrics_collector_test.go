package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/pagedstore/docstore-go/docstore/oteladapters"
)

func newTestMeter() (*sdkmetric.ManualReader, *oteladapters.MetricsCollector) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return reader, oteladapters.NewMetricsCollector(provider.Meter("test"))
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics), "Failed to collect metrics")

	return resourceMetrics
}

func findMetric(t *testing.T, resourceMetrics metricdata.ResourceMetrics, name string) metricdata.Metrics {
	t.Helper()

	for _, scopeMetrics := range resourceMetrics.ScopeMetrics {
		for _, m := range scopeMetrics.Metrics {
			if m.Name == name {
				return m
			}
		}
	}

	t.Fatalf("metric %q not found", name)
	return metricdata.Metrics{}
}

func Test_NewMetricsCollector_Construction(t *testing.T) {
	_, collector := newTestMeter()

	assert.NotNil(t, collector, "NewMetricsCollector should return non-nil collector")
}

func Test_MetricsCollector_RecordDuration(t *testing.T) {
	reader, collector := newTestMeter()

	labels := map[string]string{
		"operation": "query",
		"status":    "success",
	}

	collector.RecordDuration("docstore_query_duration_seconds", 150*time.Millisecond, labels)

	m := findMetric(t, collectMetrics(t, reader), "docstore_query_duration_seconds")
	histogram, isHistogram := m.Data.(metricdata.Histogram[float64])
	require.True(t, isHistogram, "Expected a float64 histogram")
	require.Len(t, histogram.DataPoints, 1, "Expected exactly one data point")

	dataPoint := histogram.DataPoints[0]
	assert.Equal(t, uint64(1), dataPoint.Count, "Histogram count should be 1")
	assert.InDelta(t, 0.15, dataPoint.Sum, 0.001, "Histogram sum should be 0.15 seconds")

	expectedAttrs := attribute.NewSet(
		attribute.String("operation", "query"),
		attribute.String("status", "success"),
	)
	assert.True(t, dataPoint.Attributes.Equals(&expectedAttrs), "Attributes should match")
}

func Test_MetricsCollector_IncrementCounter(t *testing.T) {
	reader, collector := newTestMeter()

	labels := map[string]string{
		"operation":  "batch_delete",
		"status":     "error",
		"error_type": "database_error",
	}

	collector.IncrementCounter("docstore_database_errors_total", labels)
	collector.IncrementCounter("docstore_database_errors_total", labels)
	collector.IncrementCounter("docstore_database_errors_total", labels)

	m := findMetric(t, collectMetrics(t, reader), "docstore_database_errors_total")
	sum, isSum := m.Data.(metricdata.Sum[int64])
	require.True(t, isSum, "Expected an int64 sum")
	require.Len(t, sum.DataPoints, 1, "Expected exactly one data point")

	assert.Equal(t, int64(3), sum.DataPoints[0].Value, "Counter should have been incremented three times")
}

func Test_MetricsCollector_RecordValue(t *testing.T) {
	reader, collector := newTestMeter()

	collector.RecordValue("docstore_documents_queried_total", 25, map[string]string{"operation": "query"})

	m := findMetric(t, collectMetrics(t, reader), "docstore_documents_queried_total")
	gauge, isGauge := m.Data.(metricdata.Gauge[float64])
	require.True(t, isGauge, "Expected a float64 gauge")
	require.Len(t, gauge.DataPoints, 1, "Expected exactly one data point")

	assert.InDelta(t, 25.0, gauge.DataPoints[0].Value, 0.001, "Gauge should hold the last recorded value")
}

func Test_MetricsCollector_ContextVariantsRecordTheSameInstruments(t *testing.T) {
	reader, collector := newTestMeter()
	ctx := context.Background()

	collector.RecordDurationContext(ctx, "docstore_get_duration_seconds", 10*time.Millisecond, nil)
	collector.IncrementCounterContext(ctx, "docstore_database_errors_total", nil)
	collector.RecordValueContext(ctx, "docstore_documents_queried_total", 5, nil)

	resourceMetrics := collectMetrics(t, reader)

	findMetric(t, resourceMetrics, "docstore_get_duration_seconds")
	findMetric(t, resourceMetrics, "docstore_database_errors_total")
	findMetric(t, resourceMetrics, "docstore_documents_queried_total")
}
