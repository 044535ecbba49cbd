package domain

// Category identifies the threat class a pattern rule detects. Categories
// carry an implicit evaluation priority: injection and prompt-leak rules run
// before everything else, scope validation runs last.
type Category string

const (
	// CategoryInjection covers prompt injection attempts.
	CategoryInjection Category = "injection"
	// CategoryPromptLeak covers system-prompt extraction attempts.
	CategoryPromptLeak Category = "prompt_leak"
	// CategorySensitiveData covers PII and credential material.
	CategorySensitiveData Category = "sensitive_data"
	// CategoryDoSPattern covers resource-abuse phrasing.
	CategoryDoSPattern Category = "dos_pattern"
	// CategoryVectorAttack covers embedding/retrieval poisoning keywords.
	CategoryVectorAttack Category = "vector_attack"
	// CategoryModelTheft covers model extraction attempts.
	CategoryModelTheft Category = "model_theft"
	// CategoryScope covers topic scope enforcement.
	CategoryScope Category = "scope"
)

// Priority returns the evaluation rank of the category; lower runs first.
func (c Category) Priority() int {
	switch c {
	case CategoryInjection:
		return 0
	case CategoryPromptLeak:
		return 1
	case CategorySensitiveData:
		return 2
	case CategoryDoSPattern:
		return 3
	case CategoryVectorAttack:
		return 4
	case CategoryModelTheft:
		return 5
	case CategoryScope:
		return 6
	default:
		return 7
	}
}

// Kind maps a rule category to the rejection kind its matches produce.
func (c Category) Kind() ErrorKind {
	switch c {
	case CategoryInjection:
		return KindInjectionDetected
	case CategoryPromptLeak:
		return KindPromptLeakAttempt
	case CategorySensitiveData:
		return KindSensitiveDataDetected
	case CategoryDoSPattern, CategoryModelTheft:
		return KindInjectionDetected
	case CategoryVectorAttack:
		return KindVectorAnomalyDetected
	case CategoryScope:
		return KindOutOfScopeTopic
	default:
		return KindInjectionDetected
	}
}

// Severity represents the impact level of a detection.
type Severity string

const (
	// SeverityLow indicates informational detections.
	SeverityLow Severity = "low"
	// SeverityMedium indicates a suspicious but not critical match.
	SeverityMedium Severity = "medium"
	// SeverityHigh indicates a critical match that requires blocking.
	SeverityHigh Severity = "high"
)

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

// ValidCategory reports whether c is a known rule category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryInjection, CategoryPromptLeak, CategorySensitiveData,
		CategoryDoSPattern, CategoryVectorAttack, CategoryModelTheft, CategoryScope:
		return true
	default:
		return false
	}
}
