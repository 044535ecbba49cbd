package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why the pipeline rejected a request. Kinds are stable
// identifiers: the chat layer keys user-facing guidance off them without
// inspecting guard internals.
type ErrorKind string

const (
	// KindInjectionDetected marks a prompt injection attempt.
	KindInjectionDetected ErrorKind = "injection_detected"
	// KindPromptLeakAttempt marks an attempt to extract system instructions.
	KindPromptLeakAttempt ErrorKind = "prompt_leak_attempt"
	// KindSensitiveDataDetected marks PII or credential material in the input.
	KindSensitiveDataDetected ErrorKind = "sensitive_data_detected"
	// KindOutOfScopeTopic marks a request outside the assistant's domain.
	KindOutOfScopeTopic ErrorKind = "out_of_scope_topic"
	// KindInputTooShort marks input below the configured minimum length.
	KindInputTooShort ErrorKind = "input_too_short"
	// KindInputTooLong marks input above the configured maximum length.
	KindInputTooLong ErrorKind = "input_too_long"
	// KindRateLimitExceeded marks a session over its request window limit.
	KindRateLimitExceeded ErrorKind = "rate_limit_exceeded"
	// KindDailyQuotaExceeded marks a session over its daily token budget.
	KindDailyQuotaExceeded ErrorKind = "daily_quota_exceeded"
	// KindCircuitOpen marks upstream unavailability; callers should use the
	// fallback response path rather than surface a bare rejection.
	KindCircuitOpen ErrorKind = "circuit_open"
	// KindVectorDimensionInvalid marks an embedding with the wrong dimensionality.
	KindVectorDimensionInvalid ErrorKind = "vector_dimension_invalid"
	// KindVectorRangeInvalid marks embedding components outside the declared range.
	KindVectorRangeInvalid ErrorKind = "vector_range_invalid"
	// KindVectorAnomalyDetected marks statistically anomalous embeddings.
	KindVectorAnomalyDetected ErrorKind = "vector_anomaly_detected"
	// KindModelNotWhitelisted marks an embedding model absent from the whitelist.
	KindModelNotWhitelisted ErrorKind = "model_not_whitelisted"
)

// ValidationError is the terminal rejection returned by the guards and the
// consumption limiter. Rejections are never retried internally; the caller
// decides the user-facing treatment based on Kind.
type ValidationError struct {
	Kind ErrorKind
	// Rule names the pattern rule that matched, when the rejection came from
	// the rule set.
	Rule string
	// Detail is a short operator-facing explanation, safe for logs.
	Detail string
	// RetryAfter is set for rate-limit and circuit-open rejections.
	RetryAfter time.Duration
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

// Retryable reports whether the rejection carries a retry hint.
func (e *ValidationError) Retryable() bool {
	return e.RetryAfter > 0
}

// NewValidationError builds a rejection of the given kind.
func NewValidationError(kind ErrorKind, detail string) *ValidationError {
	return &ValidationError{Kind: kind, Detail: detail}
}

// KindOf extracts the ErrorKind from err, unwrapping as needed. The second
// return is false when err is not a pipeline rejection.
func KindOf(err error) (ErrorKind, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind, true
	}
	return "", false
}

// userMessages maps every kind to a stable user-facing message category. The
// texts deliberately avoid echoing the offending content.
var userMessages = map[ErrorKind]string{
	KindInjectionDetected:      "Security alert: prompt injection attempt detected.",
	KindPromptLeakAttempt:      "Security: system information requests are not allowed.",
	KindSensitiveDataDetected:  "Policy: remove sensitive information before sending.",
	KindOutOfScopeTopic:        "Scope: please limit requests to database-related topics.",
	KindInputTooShort:          "Your message is too short to process.",
	KindInputTooLong:           "Your message is too long to process.",
	KindRateLimitExceeded:      "Rate limit exceeded. Please wait before sending more requests.",
	KindDailyQuotaExceeded:     "Daily usage quota exceeded. Please try again tomorrow.",
	KindCircuitOpen:            "The assistant is temporarily degraded. A basic answer will be provided.",
	KindVectorDimensionInvalid: "Vector payload has an unexpected dimensionality.",
	KindVectorRangeInvalid:     "Vector payload contains out-of-range values.",
	KindVectorAnomalyDetected:  "Vector payload failed integrity checks.",
	KindModelNotWhitelisted:    "The requested embedding model is not approved.",
}

// UserMessage returns the stable user-facing message for the rejection kind.
func (e *ValidationError) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return "Request rejected by the security pipeline."
}
