package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestOTelInitialization tests OpenTelemetry initialization with the default
// configuration: metrics on, tracing off
func TestOTelInitialization(t *testing.T) {
	providers, err := InitializeOTel(nil, testLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	// Tracing is opt-in and stays off by default
	assert.Nil(t, providers.TracerProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = providers.Shutdown(ctx)
	assert.NoError(t, err)
}

// TestTraceCorrelation tests trace ID extraction and context round-trips
func TestTraceCorrelation(t *testing.T) {
	cfg := &OTelConfig{
		ServiceName:    "test-service",
		ServiceVersion: "v1.0.0",
		Environment:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "none",
		EnableMetrics:  false,
		EnableTracing:  true,
		SampleRatio:    1.0,
	}
	providers, err := InitializeOTel(cfg, testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.Tracer)

	ctx, span := providers.Tracer.Start(context.Background(), "test-operation")
	defer span.End()

	traceID := TraceIDFromContext(ctx)
	assert.NotEmpty(t, traceID)
	assert.Equal(t, span.SpanContext().TraceID().String(), traceID)

	ctx = WithTraceID(ctx, traceID)
	assert.Equal(t, traceID, GetTraceID(ctx))
}

// TestAnalysisMetricsCreation tests metric instrument creation
func TestAnalysisMetricsCreation(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateAnalysisMetrics(providers.Meter)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	// HTTP instruments
	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.HTTPRequestDuration)
	assert.NotNil(t, metrics.HTTPActiveRequests)

	// Run instruments
	assert.NotNil(t, metrics.AnalysisRunsTotal)
	assert.NotNil(t, metrics.AnalysisRunDuration)
	assert.NotNil(t, metrics.ActiveAnalysisRuns)

	// District instruments
	assert.NotNil(t, metrics.DistrictsAnalyzedTotal)
	assert.NotNil(t, metrics.DistrictsSkippedTotal)
	assert.NotNil(t, metrics.DistrictsFailedTotal)
	assert.NotNil(t, metrics.DistrictAnalysisDuration)

	// Model instruments
	assert.NotNil(t, metrics.ModelFitFailuresTotal)
	assert.NotNil(t, metrics.ForecastsGeneratedTotal)
}

// TestRecordHelpers tests the recording helpers with real and nil instruments
func TestRecordHelpers(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateAnalysisMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()

	// nil metrics must be a no-op, the CLIs run without instruments
	RecordAnalysisRun(ctx, nil, "run-1", 12, time.Second, 3, 1, 0)
	RecordDistrictAnalysis(ctx, nil, "Gangnam-gu", "seasonal", time.Millisecond, true)
	RecordModelFitFailure(ctx, nil, "ensemble", "fit")

	RecordAnalysisRun(ctx, metrics, "run-2", 12, 1500*time.Millisecond, 24, 1, 0)
	RecordDistrictAnalysis(ctx, metrics, "Gangnam-gu", "seasonal", 40*time.Millisecond, true)
	RecordDistrictAnalysis(ctx, metrics, "Jongno-gu", "", 2*time.Millisecond, false)
	RecordModelFitFailure(ctx, metrics, "ensemble", "fit")
	RecordModelFitFailure(ctx, metrics, "linear", "predict")
}

// TestSpanOperations tests span events and error recording
func TestSpanOperations(t *testing.T) {
	cfg := &OTelConfig{
		ServiceName:    "test-service",
		ServiceVersion: "v1.0.0",
		Environment:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "none",
		EnableMetrics:  false,
		EnableTracing:  true,
		SampleRatio:    1.0,
	}
	providers, err := InitializeOTel(cfg, testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	ctx, span := providers.Tracer.Start(context.Background(), "analysis-run")
	defer span.End()

	AddSpanEvent(ctx, "analysis.started", map[string]interface{}{
		"districts": 25,
		"horizon":   int64(12),
		"workers":   4.0,
		"cached":    false,
		"source":    "district_series.csv",
		"elapsed":   time.Second,
	})

	RecordSpanError(ctx, assert.AnError)

	assert.True(t, span.IsRecording())
}

// TestPrometheusEndpoint tests that recorded instruments surface on /metrics
func TestPrometheusEndpoint(t *testing.T) {
	providers, err := InitializeOTel(DefaultOTelConfig(), testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateAnalysisMetrics(providers.Meter)
	require.NoError(t, err)

	RecordAnalysisRun(context.Background(), metrics, "run-1", 12, time.Second, 24, 1, 0)

	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "districts_analyzed_total")
	assert.Contains(t, string(body), "analysis_runs_total")
}

// TestOTelConfiguration tests different configuration options
func TestOTelConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		config *OTelConfig
	}{
		{
			name: "tracing and metrics",
			config: &OTelConfig{
				ServiceName:    "test-service",
				ServiceVersion: "v1.0.0",
				Environment:    "development",
				TraceExporter:  "stdout",
				MetricExporter: "prometheus",
				EnableMetrics:  true,
				EnableTracing:  true,
				SampleRatio:    1.0,
			},
		},
		{
			name: "metrics only",
			config: &OTelConfig{
				ServiceName:    "test-service",
				ServiceVersion: "v1.0.0",
				Environment:    "test",
				TraceExporter:  "none",
				MetricExporter: "prometheus",
				EnableMetrics:  true,
				EnableTracing:  false,
				SampleRatio:    0.0,
			},
		},
		{
			name: "tracing only",
			config: &OTelConfig{
				ServiceName:    "test-service",
				ServiceVersion: "v1.0.0",
				Environment:    "test",
				TraceExporter:  "stdout",
				MetricExporter: "none",
				EnableMetrics:  false,
				EnableTracing:  true,
				SampleRatio:    1.0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers, err := InitializeOTel(tt.config, testLogger())
			require.NoError(t, err)
			require.NotNil(t, providers)

			if tt.config.EnableTracing {
				assert.NotNil(t, providers.TracerProvider)
				assert.NotNil(t, providers.Tracer)
			} else {
				assert.Nil(t, providers.TracerProvider)
			}

			if tt.config.EnableMetrics {
				assert.NotNil(t, providers.MeterProvider)
				assert.NotNil(t, providers.Meter)
				assert.NotNil(t, providers.PrometheusHTTP)
			} else {
				assert.Nil(t, providers.MeterProvider)
				assert.Nil(t, providers.PrometheusHTTP)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err = providers.Shutdown(ctx)
			assert.NoError(t, err)
		})
	}
}

// BenchmarkMetricRecording benchmarks the hot instrument paths
func BenchmarkMetricRecording(b *testing.B) {
	providers, err := InitializeOTel(DefaultOTelConfig(), testLogger())
	require.NoError(b, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateAnalysisMetrics(providers.Meter)
	require.NoError(b, err)

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	b.Run("counter_increment", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			metrics.DistrictsAnalyzedTotal.Add(ctx, 1)
		}
	})

	b.Run("histogram_record", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			metrics.DistrictAnalysisDuration.Record(ctx, float64(i)*0.001)
		}
	})

	b.Run("district_helper", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			RecordDistrictAnalysis(ctx, metrics, "Gangnam-gu", "seasonal", time.Millisecond, true)
		}
	})
}
