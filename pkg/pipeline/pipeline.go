// Package pipeline assembles the guards, the consumption limiter and the
// audit log behind the synchronous contract the chat layer calls around each
// message exchange. The rule, scope and limit configuration lives in an
// immutable bundle swapped atomically on reload, so in-flight calls always
// observe one coherent configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aegisai/aegis-oss/internal/governance"
	"github.com/aegisai/aegis-oss/pkg/audit"
	"github.com/aegisai/aegis-oss/pkg/config"
	"github.com/aegisai/aegis-oss/pkg/domain"
	"github.com/aegisai/aegis-oss/pkg/guard/input"
	"github.com/aegisai/aegis-oss/pkg/guard/output"
	"github.com/aegisai/aegis-oss/pkg/guard/vector"
	"github.com/aegisai/aegis-oss/pkg/policy"
	"github.com/aegisai/aegis-oss/pkg/rules"
	"github.com/aegisai/aegis-oss/pkg/telemetry"
)

// bundle is the immutable configuration-derived state. A reload builds a new
// bundle and swaps the pointer; session and breaker state live outside it
// and survive reloads.
type bundle struct {
	input   *input.Guard
	output  *output.Guard
	vector  *vector.Checker
	limiter *governance.RateLimiter
	ledger  *governance.TokenLedger
}

// Pipeline is the validation facade. One instance is constructed at process
// start and shared by every request handler.
type Pipeline struct {
	logger   *slog.Logger
	events   *audit.Log
	store    *governance.SessionStore
	breakers *governance.BreakerManager
	fallback responder

	bundle atomic.Pointer[bundle]
}

// New builds a pipeline from the validated configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	events := audit.NewLog(cfg.Audit.RingCapacity, logger)
	store := governance.NewSessionStore(cfg.Limits.SessionIdleTimeout.Std())

	p := &Pipeline{
		logger: logger,
		events: events,
		store:  store,
	}

	p.breakers = governance.NewBreakerManager(governance.BreakerConfig{
		FailureThreshold: cfg.Limits.BreakerThreshold,
		Cooldown:         cfg.Limits.BreakerCooldown.Std(),
	}, p.onBreakerTransition)
	for _, provider := range cfg.Limits.Providers {
		p.breakers.Get(provider)
	}

	b, err := p.buildBundle(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p.bundle.Store(b)

	return p, nil
}

// Reload swaps in a new rule/limit bundle built from cfg. Session state, the
// breaker state machines and the event log are preserved; the session idle
// timeout and breaker thresholds keep their construction-time values.
func (p *Pipeline) Reload(ctx context.Context, cfg *config.Config) error {
	b, err := p.buildBundle(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build pipeline bundle: %w", err)
	}
	p.bundle.Store(b)
	p.logger.InfoContext(ctx, "pipeline configuration swapped")
	return nil
}

func (p *Pipeline) buildBundle(ctx context.Context, cfg *config.Config) (*bundle, error) {
	ruleSet, err := buildRuleSet(cfg.Rules)
	if err != nil {
		return nil, err
	}

	var scope *policy.ScopeEngine
	if cfg.Scope.Enabled {
		scope, err = policy.NewScopeEngine(ctx, policy.ScopeConfig{
			AllowedTopics:   cfg.Scope.AllowedTopics,
			OffTopicMarkers: cfg.Scope.OffTopicMarkers,
			MinWords:        cfg.Scope.MinWords,
		})
		if err != nil {
			return nil, fmt.Errorf("build scope engine: %w", err)
		}
	}

	whitelist, err := buildWhitelist(cfg.Vector)
	if err != nil {
		return nil, err
	}

	return &bundle{
		input: input.New(ruleSet, scope, p.events, p.logger, input.Config{
			MinLength: cfg.Input.MinLength,
			MaxLength: cfg.Input.MaxLength,
		}),
		output: output.New(ruleSet, p.events, p.logger, output.Config{
			MaxLength: cfg.Output.MaxLength,
		}),
		vector: vector.New(whitelist, p.events, p.logger, vector.Config{
			MinUniqueRatio:  cfg.Vector.MinUniqueRatio,
			MaxExtremeRatio: cfg.Vector.MaxExtremeRatio,
			ExtremeValue:    cfg.Vector.ExtremeValue,
		}),
		limiter: governance.NewRateLimiter(p.store, governance.RateLimitConfig{
			Window: cfg.Limits.Window.Std(),
			Limit:  cfg.Limits.MaxRequests,
		}),
		ledger: governance.NewTokenLedger(p.store, governance.QuotaConfig{
			DailyTokenCap:       cfg.Limits.DailyTokenCap,
			MaxTokensPerRequest: cfg.Limits.MaxTokensPerRequest,
		}),
	}, nil
}

func buildRuleSet(cfg config.RulesConfig) (*rules.Set, error) {
	var defs []rules.Rule
	if !cfg.DisableBuiltin {
		defs = rules.BuiltinRules()
	}
	for _, name := range cfg.Use {
		rule, ok := rules.GlobalRegistry().Resolve(name)
		if !ok {
			return nil, fmt.Errorf("build rule set: used rule %q is not registered", name)
		}
		defs = append(defs, rule)
	}
	for _, extra := range cfg.Extra {
		defs = append(defs, rules.Rule{
			Name:        extra.Name,
			Category:    domain.Category(extra.Category),
			Pattern:     extra.Pattern,
			Severity:    domain.Severity(extra.Severity),
			Replacement: extra.Replacement,
		})
	}
	set, err := rules.NewSet(defs)
	if err != nil {
		return nil, fmt.Errorf("build rule set: %w", err)
	}
	return set, nil
}

func buildWhitelist(cfg config.VectorConfig) (*rules.Whitelist, error) {
	if len(cfg.Models) == 0 {
		return rules.DefaultWhitelist(), nil
	}
	profiles := make([]rules.ModelProfile, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		profile := rules.ModelProfile{
			ID:         model.ID,
			Provider:   model.Provider,
			Dimensions: model.Dimensions,
			MinValue:   model.MinValue,
			MaxValue:   model.MaxValue,
		}
		if model.Baseline != nil {
			profile.Baseline = rules.Baseline{
				Mean:             model.Baseline.Mean,
				MaxMeanDeviation: model.Baseline.MaxMeanDeviation,
				MinStdDev:        model.Baseline.MinStdDev,
				MaxStdDev:        model.Baseline.MaxStdDev,
			}
		}
		profiles = append(profiles, profile)
	}
	whitelist, err := rules.NewWhitelist(profiles)
	if err != nil {
		return nil, fmt.Errorf("build model whitelist: %w", err)
	}
	return whitelist, nil
}

// ValidateInput runs the inbound message through the input guard.
func (p *Pipeline) ValidateInput(ctx context.Context, text, sessionID string) error {
	start := time.Now()
	err := p.bundle.Load().input.Validate(ctx, text, sessionID)
	p.recordGuard(ctx, "input", start, err)
	return err
}

// CheckRateLimit admits or throttles one request for the session. When every
// configured provider's breaker is open the check short-circuits with a
// CircuitOpen rejection so the caller can serve the fallback path instead of
// dialing upstream.
func (p *Pipeline) CheckRateLimit(ctx context.Context, sessionID string) error {
	start := time.Now()

	if allOpen, retryAfter := p.breakers.AllOpenRetryAfter(); allOpen {
		verr := &domain.ValidationError{
			Kind:       domain.KindCircuitOpen,
			Detail:     "all upstream providers unavailable",
			RetryAfter: retryAfter,
		}
		p.recordGuard(ctx, "rate_limit", start, verr)
		return verr
	}

	err := p.bundle.Load().limiter.Check(sessionID)
	if err != nil {
		if verr, ok := asValidation(err); ok {
			p.events.RecordEvent(ctx, domain.SecurityEvent{
				Type:      domain.EventRateLimited,
				Severity:  domain.SeverityMedium,
				SessionID: sessionID,
				Kind:      verr.Kind,
				Detail:    verr.Detail,
			})
		}
	}
	p.recordGuard(ctx, "rate_limit", start, err)
	return err
}

// ChargeTokens debits the session's daily token budget.
func (p *Pipeline) ChargeTokens(ctx context.Context, sessionID string, amount int64) error {
	start := time.Now()
	err := p.bundle.Load().ledger.Charge(sessionID, amount)
	if err != nil {
		if verr, ok := asValidation(err); ok {
			p.events.RecordEvent(ctx, domain.SecurityEvent{
				Type:      domain.EventQuotaExceeded,
				Severity:  domain.SeverityMedium,
				SessionID: sessionID,
				Kind:      verr.Kind,
				Detail:    verr.Detail,
			})
		}
	}
	p.recordGuard(ctx, "token_ledger", start, err)
	return err
}

// ReportUpstreamResult feeds a provider call outcome into its breaker. The
// AI-client collaborator must call this after every upstream attempt,
// counting timeouts as failures.
func (p *Pipeline) ReportUpstreamResult(provider string, success bool) {
	p.breakers.Record(provider, success)
}

// ProviderAvailable reports whether the provider's breaker admits a call.
// A true return may be the single half-open trial; the caller must follow
// up with ReportUpstreamResult either way.
func (p *Pipeline) ProviderAvailable(provider string) bool {
	return p.breakers.Allow(provider)
}

// ValidateOutput sanitizes an AI response. It never fails.
func (p *Pipeline) ValidateOutput(ctx context.Context, text string) string {
	start := time.Now()
	out := p.bundle.Load().output.Sanitize(ctx, text)
	p.recordGuard(ctx, "output", start, nil)
	return out
}

// ValidateVector checks an embedding payload and returns its integrity
// checksum on success.
func (p *Pipeline) ValidateVector(ctx context.Context, values []float64, modelID string) (string, error) {
	start := time.Now()
	checksum, err := p.bundle.Load().vector.Validate(ctx, values, modelID)
	p.recordGuard(ctx, "vector", start, err)
	return checksum, err
}

// Fallback serves the deterministic rule-based response path used while
// upstream providers are unavailable.
func (p *Pipeline) Fallback(ctx context.Context, sessionID, text string) string {
	response, route := p.fallback.respond(text)
	p.events.RecordEvent(ctx, domain.SecurityEvent{
		Type:      domain.EventFallbackServed,
		Severity:  domain.SeverityLow,
		SessionID: sessionID,
		Detail:    "route " + route,
	})
	telemetry.RecordFallback(ctx, route)
	return response
}

// EstimateTokens approximates the token cost of a text for ChargeTokens
// callers without an exact count.
func (p *Pipeline) EstimateTokens(text string) int64 {
	return governance.EstimateTokens(text)
}

// Events exposes the security event log for the admin surface.
func (p *Pipeline) Events() *audit.Log {
	return p.events
}

// Stats is the admin-facing snapshot of mutable pipeline state.
type Stats struct {
	ActiveSessions int                                `json:"active_sessions"`
	BufferedEvents int                                `json:"buffered_events"`
	Breakers       map[string]governance.BreakerState `json:"breakers"`
}

// Snapshot returns current session, event and breaker counts.
func (p *Pipeline) Snapshot() Stats {
	return Stats{
		ActiveSessions: p.store.Len(),
		BufferedEvents: p.events.Len(),
		Breakers:       p.breakers.States(),
	}
}

func (p *Pipeline) onBreakerTransition(tr governance.Transition) {
	severity := domain.SeverityMedium
	if tr.To == governance.StateOpen {
		severity = domain.SeverityHigh
	}
	p.events.RecordEvent(context.Background(), domain.SecurityEvent{
		Type:     domain.EventCircuitStateChange,
		Severity: severity,
		Detail:   fmt.Sprintf("provider %s: %s -> %s", tr.Provider, tr.From, tr.To),
	})
}

func (p *Pipeline) recordGuard(ctx context.Context, guard string, start time.Time, err error) {
	kind, _ := domain.KindOf(err)
	telemetry.RecordGuardDecision(ctx, telemetry.GuardMetrics{
		Guard:    guard,
		Allowed:  err == nil,
		Kind:     kind,
		Duration: time.Since(start),
	})
}

func asValidation(err error) (*domain.ValidationError, bool) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
