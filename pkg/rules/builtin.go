package rules

import "github.com/aegisai/aegis-oss/pkg/domain"

// BuiltinRules returns the default detection rule table. The patterns cover
// the OWASP LLM Top 10 input threats relevant to a database assistant:
// prompt injection, system-prompt extraction, credential/PII disclosure,
// consumption abuse, and embedding-attack phrasing.
func BuiltinRules() []Rule {
	return []Rule{
		// Prompt injection.
		{Name: "injection.ignore-previous", Category: domain.CategoryInjection, Pattern: `(?i)ignore\s+previous\s+instructions`, Severity: domain.SeverityHigh},
		{Name: "injection.forget-above", Category: domain.CategoryInjection, Pattern: `(?i)forget\s+everything\s+above`, Severity: domain.SeverityHigh},
		{Name: "injection.system-role-switch", Category: domain.CategoryInjection, Pattern: `(?i)system\s*:\s*you\s+are\s+now`, Severity: domain.SeverityHigh},
		{Name: "injection.act-as-if", Category: domain.CategoryInjection, Pattern: `(?i)act\s+as\s+if\s+you\s+are`, Severity: domain.SeverityHigh},
		{Name: "injection.pretend", Category: domain.CategoryInjection, Pattern: `(?i)pretend\s+to\s+be`, Severity: domain.SeverityHigh},
		{Name: "injection.roleplay", Category: domain.CategoryInjection, Pattern: `(?i)roleplay\s+as`, Severity: domain.SeverityHigh},
		{Name: "injection.simulate", Category: domain.CategoryInjection, Pattern: `(?i)simulate\s+being`, Severity: domain.SeverityHigh},
		{Name: "injection.override-instructions", Category: domain.CategoryInjection, Pattern: `(?i)override\s+your\s+instructions`, Severity: domain.SeverityHigh},
		{Name: "injection.disregard-programming", Category: domain.CategoryInjection, Pattern: `(?i)disregard\s+your\s+programming`, Severity: domain.SeverityHigh},
		{Name: "injection.new-instructions", Category: domain.CategoryInjection, Pattern: `(?i)new\s+instructions\s*:`, Severity: domain.SeverityHigh},
		{Name: "injection.privileged-mode", Category: domain.CategoryInjection, Pattern: `(?i)(?:admin|developer|debug|maintenance)\s+mode`, Severity: domain.SeverityHigh},

		// System prompt extraction.
		{Name: "leak.ask-instructions", Category: domain.CategoryPromptLeak, Pattern: `(?i)what\s+are\s+your\s+instructions`, Severity: domain.SeverityHigh},
		{Name: "leak.show-prompt", Category: domain.CategoryPromptLeak, Pattern: `(?i)show\s+me\s+your\s+prompt`, Severity: domain.SeverityHigh},
		{Name: "leak.system-prompt", Category: domain.CategoryPromptLeak, Pattern: `(?i)what\s+is\s+your\s+system\s+prompt`, Severity: domain.SeverityHigh},
		{Name: "leak.reveal-instructions", Category: domain.CategoryPromptLeak, Pattern: `(?i)reveal\s+your\s+instructions`, Severity: domain.SeverityHigh},
		{Name: "leak.display-guidelines", Category: domain.CategoryPromptLeak, Pattern: `(?i)display\s+your\s+guidelines`, Severity: domain.SeverityHigh},
		{Name: "leak.print-system-message", Category: domain.CategoryPromptLeak, Pattern: `(?i)print\s+your\s+system\s+message`, Severity: domain.SeverityHigh},

		// Sensitive data. These double as the output redaction set; the
		// replacement markers are chosen so they never re-match the pattern
		// that produced them.
		{Name: "credit_card", Category: domain.CategorySensitiveData, Pattern: `\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`, Severity: domain.SeverityHigh},
		{Name: "email", Category: domain.CategorySensitiveData, Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Severity: domain.SeverityHigh},
		{Name: "ssn", Category: domain.CategorySensitiveData, Pattern: `\b\d{3}[\s-]?\d{2}[\s-]?\d{4}\b`, Severity: domain.SeverityHigh},
		{Name: "password", Category: domain.CategorySensitiveData, Pattern: `(?i)password\s*[:=]\s*\S+`, Severity: domain.SeverityHigh},
		{Name: "api_key", Category: domain.CategorySensitiveData, Pattern: `(?i)api[\s_]*key\s*[:=]\s*\S+`, Severity: domain.SeverityHigh},
		{Name: "secret_key", Category: domain.CategorySensitiveData, Pattern: `(?i)secret[\s_]*key\s*[:=]\s*\S+`, Severity: domain.SeverityHigh},
		{Name: "bearer_token", Category: domain.CategorySensitiveData, Pattern: `(?i)bearer\s+[a-zA-Z0-9\-._~+/]+=*`, Severity: domain.SeverityHigh},
		{Name: "openai_key", Category: domain.CategorySensitiveData, Pattern: `sk-[a-zA-Z0-9]{48}`, Severity: domain.SeverityHigh},
		{Name: "slack_token", Category: domain.CategorySensitiveData, Pattern: `xoxb-[0-9]{11}-[0-9]{12}-[a-zA-Z0-9]{24}`, Severity: domain.SeverityHigh},
		{Name: "github_token", Category: domain.CategorySensitiveData, Pattern: `ghp_[a-zA-Z0-9]{36}`, Severity: domain.SeverityHigh},
		{Name: "aws_access_key", Category: domain.CategorySensitiveData, Pattern: `AKIA[0-9A-Z]{16}`, Severity: domain.SeverityHigh},

		// Consumption abuse.
		{Name: "dos.repeat-n-times", Category: domain.CategoryDoSPattern, Pattern: `(?i)repeat\s+this\s+\d+\s+times`, Severity: domain.SeverityMedium},
		{Name: "dos.generate-bulk", Category: domain.CategoryDoSPattern, Pattern: `(?i)generate\s+\d+\s+(?:queries|responses)`, Severity: domain.SeverityMedium},
		{Name: "dos.create-bulk", Category: domain.CategoryDoSPattern, Pattern: `(?i)create\s+\d+\s+(?:tables|indexes)`, Severity: domain.SeverityMedium},
		{Name: "dos.loop-iterations", Category: domain.CategoryDoSPattern, Pattern: `(?i)loop\s+for\s+\d+\s+iterations`, Severity: domain.SeverityMedium},
		{Name: "dos.bulk-mutation", Category: domain.CategoryDoSPattern, Pattern: `(?i)bulk\s+(?:insert|update|delete)`, Severity: domain.SeverityMedium},
		{Name: "dos.stress-test", Category: domain.CategoryDoSPattern, Pattern: `(?i)stress\s+test`, Severity: domain.SeverityMedium},

		// Embedding / retrieval attacks.
		{Name: "vector.adversarial-embedding", Category: domain.CategoryVectorAttack, Pattern: `(?i)adversarial\s+embedding`, Severity: domain.SeverityMedium},
		{Name: "vector.manipulation", Category: domain.CategoryVectorAttack, Pattern: `(?i)vector\s+manipulation`, Severity: domain.SeverityMedium},
		{Name: "vector.embedding-attack", Category: domain.CategoryVectorAttack, Pattern: `(?i)embedding\s+attack`, Severity: domain.SeverityMedium},
		{Name: "vector.similarity-spoofing", Category: domain.CategoryVectorAttack, Pattern: `(?i)similarity\s+spoofing`, Severity: domain.SeverityMedium},
		{Name: "vector.retrieval-poisoning", Category: domain.CategoryVectorAttack, Pattern: `(?i)retrieval\s+poisoning`, Severity: domain.SeverityMedium},
		{Name: "vector.retrieve-all", Category: domain.CategoryVectorAttack, Pattern: `(?i)retrieve\s+all\s+documents`, Severity: domain.SeverityMedium},
		{Name: "vector.bypass-filters", Category: domain.CategoryVectorAttack, Pattern: `(?i)bypass\s+retrieval\s+filters`, Severity: domain.SeverityMedium},
		{Name: "vector.inject-context", Category: domain.CategoryVectorAttack, Pattern: `(?i)inject\s+malicious\s+context`, Severity: domain.SeverityMedium},

		// Model extraction.
		{Name: "theft.training-parameters", Category: domain.CategoryModelTheft, Pattern: `(?i)what\s+are\s+your\s+training\s+parameters`, Severity: domain.SeverityMedium},
		{Name: "theft.how-trained", Category: domain.CategoryModelTheft, Pattern: `(?i)how\s+were\s+you\s+trained`, Severity: domain.SeverityMedium},
		{Name: "theft.architecture", Category: domain.CategoryModelTheft, Pattern: `(?i)what\s+model\s+architecture`, Severity: domain.SeverityMedium},
		{Name: "theft.reproduce-responses", Category: domain.CategoryModelTheft, Pattern: `(?i)reproduce\s+your\s+responses`, Severity: domain.SeverityMedium},
		{Name: "theft.clone-behavior", Category: domain.CategoryModelTheft, Pattern: `(?i)clone\s+your\s+behavior`, Severity: domain.SeverityMedium},
		{Name: "theft.extract-weights", Category: domain.CategoryModelTheft, Pattern: `(?i)extract\s+your\s+weights`, Severity: domain.SeverityMedium},
	}
}

// DefaultSet compiles the builtin rule table. It panics on error because the
// builtin patterns are covered by tests and must always compile.
func DefaultSet() *Set {
	set, err := NewSet(BuiltinRules())
	if err != nil {
		panic(err)
	}
	return set
}

// BuiltinScopeTopics returns the default allowed-topic keywords for the
// database assistant domain. A message mentioning any of these passes the
// scope check.
func BuiltinScopeTopics() []string {
	return []string{
		"database", "sql", "query", "performance", "optimization",
		"index", "table", "schema", "postgresql", "mysql", "oracle",
		"mongodb", "redis", "troubleshooting", "backup", "restore",
		"replication", "clustering", "scaling", "capacity", "security",
	}
}

// BuiltinOffTopicMarkers returns the default off-topic indicators. A message
// containing any of these is rejected by the scope check regardless of
// length.
func BuiltinOffTopicMarkers() []string {
	return []string{
		"weather", "politics", "personal", "relationship", "medical",
		"legal advice", "financial advice", "investment", "crypto",
		"write a story", "poem", "joke", "recipe", "travel",
	}
}
