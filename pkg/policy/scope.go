package policy

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/storage/inmem"
)

// Action is the outcome of a scope evaluation.
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// Decision is the parsed result of a scope evaluation.
type Decision struct {
	Action Action
	Reason string
}

// ScopeConfig is the data document backing the scope policy.
type ScopeConfig struct {
	// AllowedTopics are lowercase keywords a message must mention to count
	// as on-topic. Empty means every topic is in scope.
	AllowedTopics []string
	// OffTopicMarkers are lowercase substrings that block a message
	// regardless of topic matches.
	OffTopicMarkers []string
	// MinWords exempts short messages (greetings, acknowledgements) from
	// the allowed-topics requirement. Zero selects the default of 4.
	MinWords int
	// CacheMaxEntries bounds the decision cache (LRU). Zero selects the
	// default size; negative disables caching.
	CacheMaxEntries int
}

const (
	scopeEntrypoint      = "aegis/scope/decision"
	defaultMinWords      = 4
	defaultCacheCapacity = 1024
)

// scopeModule is evaluated against a data document of the shape
// {"scope": {"allowed_topics": [...], "off_topic_markers": [...], "min_words": n}}.
const scopeModule = `package aegis.scope

import rego.v1

default decision := {"action": "allow", "reason": ""}

decision := {"action": "block", "reason": "off-topic marker present"} if {
	marker_hit
}

decision := {"action": "block", "reason": "no allowed topic mentioned"} if {
	not marker_hit
	count(data.scope.allowed_topics) > 0
	input.word_count >= data.scope.min_words
	not topic_hit
}

marker_hit if {
	some marker in data.scope.off_topic_markers
	contains(input.message, marker)
}

topic_hit if {
	some topic in data.scope.allowed_topics
	contains(input.message, topic)
}
`

// ScopeEngine evaluates messages against the compiled scope policy.
type ScopeEngine struct {
	prepared rego.PreparedEvalQuery
	minWords int
	cache    *decisionCache
}

// NewScopeEngine compiles the scope module with cfg as its data document.
func NewScopeEngine(ctx context.Context, cfg ScopeConfig) (*ScopeEngine, error) {
	minWords := cfg.MinWords
	if minWords <= 0 {
		minWords = defaultMinWords
	}

	maxEntries := cfg.CacheMaxEntries
	switch {
	case maxEntries == 0:
		maxEntries = defaultCacheCapacity
	case maxEntries < 0:
		maxEntries = 0
	}
	var cache *decisionCache
	if maxEntries > 0 {
		cache = newDecisionCache(maxEntries)
	}

	module, err := ast.ParseModuleWithOpts("scope.rego", scopeModule, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parse scope module: %w", err)
	}

	store := inmem.NewFromObject(map[string]any{
		"scope": map[string]any{
			"allowed_topics":    lowercaseAll(cfg.AllowedTopics),
			"off_topic_markers": lowercaseAll(cfg.OffTopicMarkers),
			"min_words":         minWords,
		},
	})

	query := "data." + strings.ReplaceAll(scopeEntrypoint, "/", ".")
	prepared, err := rego.New(
		rego.Query(query),
		rego.ParsedModule(module),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile scope module: %w", err)
	}

	return &ScopeEngine{prepared: prepared, minWords: minWords, cache: cache}, nil
}

// Evaluate decides whether a message is in scope. The message is lowercased
// before matching so topics and markers are case-insensitive.
func (e *ScopeEngine) Evaluate(ctx context.Context, message string) (Decision, error) {
	normalized := strings.ToLower(message)
	wordCount := len(strings.Fields(normalized))

	cacheKey, shouldCache := e.cacheKey(normalized)
	if shouldCache {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	payload := map[string]any{
		"message":    normalized,
		"word_count": wordCount,
	}

	results, err := e.prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("scope decision: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Action: ActionAllow}, nil
	}

	raw, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("scope decision: unexpected result type %T", results[0].Expressions[0].Value)
	}

	decision, err := parseDecision(raw)
	if err != nil {
		return Decision{}, err
	}

	if shouldCache {
		e.cache.Add(cacheKey, decision)
	}
	return decision, nil
}

// FlushCache clears all cached decisions. Safe to call concurrently.
func (e *ScopeEngine) FlushCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

func (e *ScopeEngine) cacheKey(normalized string) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), true
}

func parseDecision(raw map[string]any) (Decision, error) {
	action, err := parseAction(raw["action"])
	if err != nil {
		return Decision{}, err
	}
	reason, _ := raw["reason"].(string)
	return Decision{Action: action, Reason: reason}, nil
}

func parseAction(value any) (Action, error) {
	if value == nil {
		return ActionAllow, nil
	}
	text, ok := value.(string)
	if !ok {
		return Action(""), fmt.Errorf("scope decision: action must be string, got %T", value)
	}
	switch Action(strings.ToLower(text)) {
	case ActionAllow:
		return ActionAllow, nil
	case ActionBlock:
		return ActionBlock, nil
	default:
		return Action(""), fmt.Errorf("scope decision: unknown action %q", text)
	}
}

func lowercaseAll(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

type decisionCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type cacheItem struct {
	key   string
	value Decision
}

func newDecisionCache(capacity int) *decisionCache {
	return &decisionCache{
		max:     capacity,
		order:   list.New(),
		entries: make(map[string]*list.Element, capacity),
	}
}

func (c *decisionCache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(cacheItem).value, true
}

func (c *decisionCache) Add(key string, value Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = cacheItem{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(cacheItem{key: key, value: value})
	c.entries[key] = elem

	if c.order.Len() <= c.max {
		return
	}

	tail := c.order.Back()
	if tail != nil {
		c.order.Remove(tail)
		delete(c.entries, tail.Value.(cacheItem).key)
	}
}

func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element, c.max)
}
