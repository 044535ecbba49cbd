package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aegisai/aegis-oss/pkg/domain"
)

func TestRecordGuardDecision(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
	})

	ResetMetricsForTest()

	RecordGuardDecision(ctx, GuardMetrics{
		Guard:    "input",
		Allowed:  false,
		Kind:     domain.KindRateLimitExceeded,
		Duration: 2 * time.Millisecond,
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}

	decisions, ok := metrics["aegis.guard.decisions_total"]
	if !ok {
		t.Fatalf("missing aegis.guard.decisions_total metric")
	}
	decisionData, ok := decisions.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type for decisions metric")
	}
	if len(decisionData.DataPoints) != 1 {
		t.Fatalf("expected 1 datapoint, got %d", len(decisionData.DataPoints))
	}
	if decisionData.DataPoints[0].Value != 1 {
		t.Fatalf("expected decision count 1, got %d", decisionData.DataPoints[0].Value)
	}
	if value, ok := decisionData.DataPoints[0].Attributes.Value(attribute.Key("guard.outcome")); !ok || value.AsString() != "rejected" {
		t.Fatalf("expected guard.outcome rejected, got %v", value)
	}

	throttled, ok := metrics["aegis.guard.rate_limited_total"]
	if !ok {
		t.Fatalf("missing aegis.guard.rate_limited_total metric")
	}
	throttledData := throttled.Data.(metricdata.Sum[int64])
	if throttledData.DataPoints[0].Value != 1 {
		t.Fatalf("expected rate limited count 1, got %d", throttledData.DataPoints[0].Value)
	}

	hist, ok := metrics["aegis.guard.duration_ms"]
	if !ok {
		t.Fatalf("missing aegis.guard.duration_ms metric")
	}
	histData := hist.Data.(metricdata.Histogram[float64])
	if histData.DataPoints[0].Count != 1 {
		t.Fatalf("expected histogram count 1, got %d", histData.DataPoints[0].Count)
	}
	if histData.DataPoints[0].Sum != 2 {
		t.Fatalf("expected histogram sum 2, got %v", histData.DataPoints[0].Sum)
	}
}

func TestAnnotateSecurityEvent(t *testing.T) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider()
	tp.RegisterSpanProcessor(recorder)
	tracer := tp.Tracer("test")

	_, span := tracer.Start(context.Background(), "validate_input")
	AnnotateSecurityEvent(span, domain.SecurityEvent{
		Type:     domain.EventInputRejected,
		Severity: domain.SeverityHigh,
		Kind:     domain.KindInjectionDetected,
		Rule:     "injection.ignore-previous",
	})
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 security event, got %d", len(events))
	}
	if events[0].Name != "security.event" {
		t.Fatalf("unexpected event name %q", events[0].Name)
	}

	attrs := attribute.NewSet(events[0].Attributes...)
	if value, ok := attrs.Value(attribute.Key("security.event.kind")); !ok || value.AsString() != string(domain.KindInjectionDetected) {
		t.Fatalf("expected kind attribute, got %v", value)
	}
	if value, ok := attrs.Value(attribute.Key("security.event.rule")); !ok || value.AsString() != "injection.ignore-previous" {
		t.Fatalf("expected rule attribute, got %v", value)
	}

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown tracer provider: %v", err)
	}
}

func TestPrometheusMetricsRecordEvent(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordEvent(context.Background(), domain.SecurityEvent{
		Type:     domain.EventInputRejected,
		Severity: domain.SeverityHigh,
		Kind:     domain.KindInjectionDetected,
	})
	m.RecordEvent(context.Background(), domain.SecurityEvent{
		Type:     domain.EventInputAllowed,
		Severity: domain.SeverityLow,
	})
	m.SetActiveSessions(3)
	m.IncConfigReload(true)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := map[string]bool{}
	for _, family := range families {
		byName[family.GetName()] = true
	}
	for _, name := range []string{
		"aegis_security_events_total",
		"aegis_rejections_total",
		"aegis_sessions_active",
		"aegis_config_reloads_total",
	} {
		if !byName[name] {
			t.Fatalf("missing metric family %s", name)
		}
	}
}
