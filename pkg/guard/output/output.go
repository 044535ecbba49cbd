// Package output implements the outbound response guard. Sanitize is a
// defensive transformation: it redacts sensitive matches, prepends an
// uncertainty disclaimer when overclaiming language is present, enforces a
// length bound and appends a compliance footer. It never rejects a response
// and it is a fixed point: running it on its own output changes nothing.
package output

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/rules"
)

const (
	// Disclaimer is prepended once when overclaiming heuristics match.
	Disclaimer = "**Disclaimer**: Verify all recommendations in a test environment before applying them in production.\n\n"
	// Footer is appended to every sanitized response exactly once.
	Footer = "\n\n_Response validated for security compliance._"
	// TruncationMarker terminates a response cut at the length bound.
	TruncationMarker = "…[truncated]"
)

// overclaimPatterns flag absolute or overconfident phrasing that warrants an
// uncertainty disclaimer.
var overclaimPatterns = compileAll([]string{
	`(?i)always\s+(true|false|works|fails)`,
	`(?i)never\s+(happens|works|fails)`,
	`(?i)100%\s+(certain|guaranteed|accurate)`,
	`(?i)absolutely\s+(guaranteed|certain|never)`,
	`(?i)impossible\s+to\s+(fail|break)`,
	`(?i)will\s+definitely\s+(work|fix|solve)`,
	`(?i)proven\s+fact\s+that`,
	`(?i)all\s+experts\s+agree`,
	`(?i)universally\s+accepted`,
	`(?i)this\s+is\s+the\s+only\s+solution`,
	`(?i)guaranteed\s+to\s+(work|fix)`,
	`(?i)will\s+solve\s+all\s+your\s+problems`,
	`(?i)foolproof\s+method`,
	`(?i)cannot\s+possibly\s+fail`,
	`(?i)works\s+in\s+all\s+cases`,
	`(?i)no\s+exceptions\s+whatsoever`,
	`(?i)indexes\s+always\s+improve\s+performance`,
	`(?i)no\s+need\s+to\s+test\s+this\s+change`,
	`(?i)backup\s+is\s+not\s+necessary`,
	`(?i)everyone\s+knows\s+that`,
	`(?i)obviously\s+better\s+than`,
})

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Config bounds the sanitized response body. The length is measured in runes
// and excludes the disclaimer and footer.
type Config struct {
	MaxLength int
}

// DefaultConfig returns the default 8000-rune bound.
func DefaultConfig() Config {
	return Config{MaxLength: 8000}
}

// Guard sanitizes outbound responses. Immutable after construction, safe for
// concurrent use.
type Guard struct {
	rules  *rules.Set
	sink   domain.EventSink
	logger *slog.Logger
	config Config
}

// New constructs an output guard over the sensitive-data subset of set.
func New(set *rules.Set, sink domain.EventSink, logger *slog.Logger, cfg Config) *Guard {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultConfig().MaxLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{rules: set, sink: sink, logger: logger, config: cfg}
}

// Sanitize transforms an AI response for delivery. It always returns a
// string; there is no failure path.
func (g *Guard) Sanitize(ctx context.Context, text string) string {
	body := strings.TrimSuffix(text, Footer)

	// The disclaimer is sticky: once present it survives re-runs even if
	// the phrasing that triggered it was truncated away.
	hasDisclaimer := strings.HasPrefix(body, Disclaimer)
	if hasDisclaimer {
		body = strings.TrimPrefix(body, Disclaimer)
	}

	body, redactions := g.rules.RedactSensitive(body)

	needDisclaimer := hasDisclaimer
	if !needDisclaimer {
		for _, pattern := range overclaimPatterns {
			if pattern.MatchString(body) {
				needDisclaimer = true
				break
			}
		}
	}

	body, truncated := truncateRunes(body, g.config.MaxLength)

	out := body
	if needDisclaimer {
		out = Disclaimer + out
	}
	out += Footer

	g.recordEvent(ctx, redactions, needDisclaimer && !hasDisclaimer, truncated)
	return out
}

// truncateRunes cuts body to max runes, keeping the truncation marker stable
// across repeated calls.
func truncateRunes(body string, max int) (string, bool) {
	wasTruncated := strings.HasSuffix(body, TruncationMarker)
	if wasTruncated {
		body = strings.TrimSuffix(body, TruncationMarker)
	}

	runes := []rune(body)
	cut := len(runes) > max
	if cut {
		body = string(runes[:max])
	}
	if wasTruncated || cut {
		return body + TruncationMarker, true
	}
	return body, false
}

func (g *Guard) recordEvent(ctx context.Context, redactions []rules.Match, disclaimerAdded, truncated bool) {
	severity := domain.SeverityLow
	if len(redactions) > 0 {
		severity = domain.SeverityHigh
	}

	detail := make([]string, 0, 3)
	for _, match := range redactions {
		detail = append(detail, "redacted "+match.Rule)
	}
	if disclaimerAdded {
		detail = append(detail, "disclaimer added")
	}
	if truncated {
		detail = append(detail, "truncated")
	}

	if g.sink != nil {
		g.sink.RecordEvent(ctx, domain.SecurityEvent{
			Type:     domain.EventOutputSanitized,
			Severity: severity,
			Detail:   strings.Join(detail, ", "),
		})
	}
	if len(redactions) > 0 {
		g.logger.WarnContext(ctx, "sensitive data redacted from response", "rules", len(redactions))
	}
}
