package domain

import (
	"context"
	"time"
)

// EventType names the pipeline decision an audit record describes.
type EventType string

const (
	// EventInputAllowed records an inbound message passing all input checks.
	EventInputAllowed EventType = "input_allowed"
	// EventInputRejected records an inbound message rejected by the input guard.
	EventInputRejected EventType = "input_rejected"
	// EventRateLimited records a throttled admission check.
	EventRateLimited EventType = "rate_limited"
	// EventQuotaExceeded records a rejected token charge.
	EventQuotaExceeded EventType = "quota_exceeded"
	// EventCircuitStateChange records a circuit breaker transition.
	EventCircuitStateChange EventType = "circuit_state_change"
	// EventOutputSanitized records output-guard processing of a response.
	EventOutputSanitized EventType = "output_sanitized"
	// EventVectorRejected records a failed vector integrity check.
	EventVectorRejected EventType = "vector_rejected"
	// EventVectorValidated records a successful vector integrity check.
	EventVectorValidated EventType = "vector_validated"
	// EventFallbackServed records a rule-based response served while the
	// upstream circuit is open.
	EventFallbackServed EventType = "fallback_served"
)

// SecurityEvent is one append-only audit record. Every guard decision
// produces exactly one event; the observability layer consumes them through
// an EventSink.
type SecurityEvent struct {
	ID        string
	Sequence  uint64
	Type      EventType
	Severity  Severity
	SessionID string
	// Kind is set when the event describes a rejection.
	Kind ErrorKind
	// Rule names the pattern rule behind the decision, when one matched.
	Rule      string
	Detail    string
	Timestamp time.Time
}

// EventSink receives security events. Implementations must be safe for
// concurrent use and must not block the calling guard.
type EventSink interface {
	RecordEvent(ctx context.Context, event SecurityEvent)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event SecurityEvent)

// RecordEvent implements EventSink.
func (f EventSinkFunc) RecordEvent(ctx context.Context, event SecurityEvent) {
	f(ctx, event)
}
