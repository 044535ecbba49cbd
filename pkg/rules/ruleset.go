// Package rules implements the categorized pattern rule set and the approved
// embedding model whitelist consumed by the guard layer.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aegisai/aegis-oss/pkg/domain"
)

// Rule declares one detection rule. Rules are immutable once compiled into a
// Set and shared read-only across all guard invocations.
type Rule struct {
	Name     string
	Category domain.Category
	Pattern  string
	Severity domain.Severity
	// Replacement is the redaction marker for sensitive-data rules. When
	// empty a typed default of the form [REDACTED:name] is derived.
	Replacement string
}

// Match describes a single rule hit.
type Match struct {
	Rule     string
	Category domain.Category
	Severity domain.Severity
	Kind     domain.ErrorKind
}

type compiledRule struct {
	name        string
	category    domain.Category
	expr        *regexp.Regexp
	severity    domain.Severity
	replacement string
}

// Set is an immutable, priority-ordered collection of compiled rules.
// Evaluation is first-match-wins: rules are held sorted by category priority,
// preserving declaration order within a category.
type Set struct {
	rules []compiledRule
}

// NewSet compiles the provided rules into an evaluation set.
func NewSet(defs []Rule) (*Set, error) {
	compiled := make([]compiledRule, 0, len(defs))
	for _, rule := range defs {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return nil, fmt.Errorf("rules: rule name is required")
		}
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("rules: pattern is required for rule %s", name)
		}
		if !domain.ValidCategory(rule.Category) {
			return nil, fmt.Errorf("rules: invalid category %q for rule %s", rule.Category, name)
		}
		severity := rule.Severity
		if severity == "" {
			severity = domain.SeverityMedium
		}
		if !domain.ValidSeverity(severity) {
			return nil, fmt.Errorf("rules: invalid severity %q for rule %s", severity, name)
		}
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("rules: invalid pattern for rule %s: %w", name, err)
		}
		replacement := rule.Replacement
		if replacement == "" && rule.Category == domain.CategorySensitiveData {
			replacement = fmt.Sprintf("[REDACTED:%s]", name)
		}
		compiled = append(compiled, compiledRule{
			name:        name,
			category:    rule.Category,
			expr:        expr,
			severity:    severity,
			replacement: replacement,
		})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].category.Priority() < compiled[j].category.Priority()
	})

	return &Set{rules: compiled}, nil
}

// Len returns the number of compiled rules.
func (s *Set) Len() int {
	return len(s.rules)
}

// FirstMatch evaluates text against the set in priority order and returns the
// first hit. No further rules are evaluated once one matches.
func (s *Set) FirstMatch(text string) (Match, bool) {
	for _, rule := range s.rules {
		if rule.expr.MatchString(text) {
			return Match{
				Rule:     rule.name,
				Category: rule.category,
				Severity: rule.severity,
				Kind:     rule.category.Kind(),
			}, true
		}
	}
	return Match{}, false
}

// RedactSensitive replaces every sensitive-data match in text with the rule's
// typed marker. Markers never re-match their source patterns, so redaction is
// idempotent and irreversible.
func (s *Set) RedactSensitive(text string) (string, []Match) {
	var matches []Match
	redacted := text
	for _, rule := range s.rules {
		if rule.category != domain.CategorySensitiveData {
			continue
		}
		if !rule.expr.MatchString(redacted) {
			continue
		}
		matches = append(matches, Match{
			Rule:     rule.name,
			Category: rule.category,
			Severity: rule.severity,
			Kind:     rule.category.Kind(),
		})
		replacement := rule.replacement
		redacted = rule.expr.ReplaceAllStringFunc(redacted, func(_ string) string {
			return replacement
		})
	}
	return redacted, matches
}
