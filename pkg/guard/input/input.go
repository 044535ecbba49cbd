// Package input implements the inbound message guard: length bounds, the
// ordered pattern rule scan, and the topic scope policy. Every call emits
// exactly one security event.
package input

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/policy"
	"github.com/aegisai/aegis-oss/pkg/rules"
)

// Config bounds the accepted input length. Lengths are measured in runes so
// multi-byte text is not penalized.
type Config struct {
	MinLength int
	MaxLength int
}

// DefaultConfig returns the default 2..5000 rune bounds.
func DefaultConfig() Config {
	return Config{MinLength: 2, MaxLength: 5000}
}

// Guard validates inbound chat messages. It holds only immutable state and
// is safe for concurrent use.
type Guard struct {
	rules  *rules.Set
	scope  *policy.ScopeEngine
	sink   domain.EventSink
	logger *slog.Logger
	config Config
}

// New constructs an input guard. scope may be nil, which disables the topic
// check entirely.
func New(set *rules.Set, scope *policy.ScopeEngine, sink domain.EventSink, logger *slog.Logger, cfg Config) *Guard {
	def := DefaultConfig()
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = def.MaxLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{rules: set, scope: scope, sink: sink, logger: logger, config: cfg}
}

// Validate admits or rejects one inbound message. Rejections are terminal
// and carry the matched rule; they are never retried.
func (g *Guard) Validate(ctx context.Context, text, sessionID string) error {
	// Length bounds run before any regex work so oversized abuse never
	// reaches the pattern scan.
	length := utf8.RuneCountInString(text)
	if length < g.config.MinLength {
		verr := domain.NewValidationError(domain.KindInputTooShort, fmt.Sprintf("%d runes, minimum %d", length, g.config.MinLength))
		g.reject(ctx, sessionID, verr, domain.SeverityLow)
		return verr
	}
	if length > g.config.MaxLength {
		verr := domain.NewValidationError(domain.KindInputTooLong, fmt.Sprintf("%d runes, maximum %d", length, g.config.MaxLength))
		g.reject(ctx, sessionID, verr, domain.SeverityLow)
		return verr
	}

	if match, ok := g.rules.FirstMatch(text); ok {
		verr := &domain.ValidationError{
			Kind:   match.Kind,
			Rule:   match.Rule,
			Detail: fmt.Sprintf("matched %s rule %s", match.Category, match.Rule),
		}
		g.reject(ctx, sessionID, verr, match.Severity)
		return verr
	}

	if g.scope != nil {
		dec, err := g.scope.Evaluate(ctx, text)
		if err != nil {
			// A broken policy engine must not let traffic through
			// unchecked.
			verr := domain.NewValidationError(domain.KindOutOfScopeTopic, "scope policy evaluation failed")
			g.logger.ErrorContext(ctx, "scope evaluation failed", "error", err)
			g.reject(ctx, sessionID, verr, domain.SeverityMedium)
			return verr
		}
		if dec.Action == policy.ActionBlock {
			verr := domain.NewValidationError(domain.KindOutOfScopeTopic, dec.Reason)
			g.reject(ctx, sessionID, verr, domain.SeverityMedium)
			return verr
		}
	}

	g.record(ctx, domain.SecurityEvent{
		Type:      domain.EventInputAllowed,
		Severity:  domain.SeverityLow,
		SessionID: sessionID,
	})
	g.logger.DebugContext(ctx, "input allowed", "session_id", sessionID, "runes", length)
	return nil
}

func (g *Guard) reject(ctx context.Context, sessionID string, verr *domain.ValidationError, severity domain.Severity) {
	g.record(ctx, domain.SecurityEvent{
		Type:      domain.EventInputRejected,
		Severity:  severity,
		SessionID: sessionID,
		Kind:      verr.Kind,
		Rule:      verr.Rule,
		Detail:    verr.Detail,
	})
	g.logger.WarnContext(ctx, "input rejected",
		"session_id", sessionID,
		"kind", string(verr.Kind),
		"rule", verr.Rule,
	)
}

func (g *Guard) record(ctx context.Context, event domain.SecurityEvent) {
	if g.sink != nil {
		g.sink.RecordEvent(ctx, event)
	}
}
