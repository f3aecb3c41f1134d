package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/catalog-indexer/pkg/logger"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestRequestLogging_GeneratesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter("indexer", "info", &buf)

	var seen string
	h := RequestLogging(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/index/products", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationHeader))

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http request", lines[0]["msg"])
	assert.EqualValues(t, http.StatusAccepted, lines[0]["status"])
	assert.Equal(t, seen, lines[0]["correlation_id"])
}

func TestRequestLogging_KeepsInboundIDAndSkipsQuietPaths(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter("indexer", "info", &buf)
	h := RequestLogging(l, "/health/live")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(CorrelationHeader, "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "corr-1", rec.Header().Get(CorrelationHeader))
	assert.Zero(t, buf.Len())
}

func TestRequestLogger_EnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := logger.NewWithWriter("indexer", "info", &buf)

	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handled")
	}))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = logger.WithCorrelationID(ctx, "corr-7")

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	req.Header.Set(OwnerHeader, "tenant-a")
	h.ServeHTTP(httptest.NewRecorder(), req)

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "corr-7", lines[0]["correlation_id"])
	assert.Equal(t, "tenant-a", lines[0]["owner"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", lines[0]["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", lines[0]["span_id"])
}

func TestRequestLogger_NoOwnerOmitsField(t *testing.T) {
	var buf bytes.Buffer
	base := logger.NewWithWriter("indexer", "info", &buf)

	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handled")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "owner")
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewWithWriter("indexer", "info", &buf)

	h := Recovery(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestPrometheusMetrics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-test"))
	r.Post("/api/v1/index/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, id := range []string{"P1", "P2", "P3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/index/products/"+id, nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	counter := httpRequestsTotal.WithLabelValues("metrics-test", http.MethodPost, "/api/v1/index/products/{id}", "202")
	assert.Equal(t, float64(3), testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("metrics-test")))
}

func TestPrometheusMetrics_Unmatched(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-unmatched"))
	r.Get("/known", func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	counter := httpRequestsTotal.WithLabelValues("metrics-unmatched", http.MethodGet, unmatchedRoute, "404")
	assert.Equal(t, float64(1), testutil.ToFloat64(counter))
}

func TestStatusRecorder_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := record(rec)
	assert.Same(t, sr, record(sr))

	_, _ = sr.Write([]byte("ok"))
	sr.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, sr.status)
	assert.Equal(t, 2, sr.bytes)
}

func TestTracing_SpanUsesRoutePattern(t *testing.T) {
	exporter := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(Tracing("indexer"))
	r.Post("/api/v1/index/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/index/products/P9", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /api/v1/index/products/{id}", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
	assert.NotEqual(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, rec.Header().Get("traceparent"))
}

func TestTracing_ServerErrorAndParent(t *testing.T) {
	exporter := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(Tracing("indexer"))
	r.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
}
