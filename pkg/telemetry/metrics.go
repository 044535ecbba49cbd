package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aegisai/aegis-oss/pkg/domain"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	guardDecisionCounter metric.Int64Counter
	rateLimitedCounter   metric.Int64Counter
	quotaExceededCounter metric.Int64Counter
	circuitOpenCounter   metric.Int64Counter
	fallbackCounter      metric.Int64Counter
	guardLatencyHist     metric.Float64Histogram
)

// GuardMetrics captures the fields recorded for every guard decision.
type GuardMetrics struct {
	Guard    string
	Allowed  bool
	Kind     domain.ErrorKind
	Duration time.Duration
}

// RecordGuardDecision emits counters and the latency histogram describing a
// guard call. Safe to call before a meter provider is installed; recording
// is a no-op until instruments initialise.
func RecordGuardDecision(ctx context.Context, metrics GuardMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	outcome := "allowed"
	if !metrics.Allowed {
		outcome = "rejected"
	}
	attrs := []attribute.KeyValue{
		attribute.String("guard.name", metrics.Guard),
		attribute.String("guard.outcome", outcome),
	}
	if metrics.Kind != "" {
		attrs = append(attrs, attribute.String("guard.kind", string(metrics.Kind)))
	}

	guardDecisionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if metrics.Duration > 0 {
		guardLatencyHist.Record(ctx, float64(metrics.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	switch metrics.Kind {
	case domain.KindRateLimitExceeded:
		rateLimitedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	case domain.KindDailyQuotaExceeded:
		quotaExceededCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	case domain.KindCircuitOpen:
		circuitOpenCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordFallback counts a rule-based response served while upstream circuits
// are open.
func RecordFallback(ctx context.Context, provider string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	fallbackCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider.name", provider),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("aegis.pipeline")

		guardDecisionCounter, metricsInitErr = meter.Int64Counter(
			"aegis.guard.decisions_total",
			metric.WithDescription("Guard decisions partitioned by guard and outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		rateLimitedCounter, metricsInitErr = meter.Int64Counter(
			"aegis.guard.rate_limited_total",
			metric.WithDescription("Admission checks throttled by the sliding window"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		quotaExceededCounter, metricsInitErr = meter.Int64Counter(
			"aegis.guard.quota_exceeded_total",
			metric.WithDescription("Token charges rejected by the daily ledger"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		circuitOpenCounter, metricsInitErr = meter.Int64Counter(
			"aegis.guard.circuit_open_total",
			metric.WithDescription("Admission checks short-circuited by open breakers"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		fallbackCounter, metricsInitErr = meter.Int64Counter(
			"aegis.fallback.responses_total",
			metric.WithDescription("Rule-based responses served while upstream circuits are open"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		guardLatencyHist, metricsInitErr = meter.Float64Histogram(
			"aegis.guard.duration_ms",
			metric.WithDescription("Observed guard call latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
