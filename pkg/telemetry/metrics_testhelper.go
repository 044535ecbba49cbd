package telemetry

import "sync"

// ResetMetricsForTest clears cached metric instruments so tests can
// reinitialize them against a fresh MeterProvider. This is intended for
// use in test code only.
func ResetMetricsForTest() {
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	guardDecisionCounter = nil
	rateLimitedCounter = nil
	quotaExceededCounter = nil
	circuitOpenCounter = nil
	fallbackCounter = nil
	guardLatencyHist = nil
}
