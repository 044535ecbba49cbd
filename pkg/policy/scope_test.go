package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBankingEngine(t *testing.T) *ScopeEngine {
	t.Helper()
	engine, err := NewScopeEngine(context.Background(), ScopeConfig{
		AllowedTopics:   []string{"account", "transfer", "balance", "card"},
		OffTopicMarkers: []string{"write me a poem", "medical advice"},
		MinWords:        4,
	})
	require.NoError(t, err)
	return engine
}

func TestScopeEngineAllowsOnTopicMessage(t *testing.T) {
	engine := newBankingEngine(t)

	dec, err := engine.Evaluate(context.Background(), "What is the balance of my savings account today?")
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, dec.Action)
}

func TestScopeEngineBlocksOffTopicMarker(t *testing.T) {
	engine := newBankingEngine(t)

	dec, err := engine.Evaluate(context.Background(), "Please Write Me A Poem about my bank account")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, dec.Action)
	assert.Equal(t, "off-topic marker present", dec.Reason)
}

func TestScopeEngineBlocksWhenNoTopicMentioned(t *testing.T) {
	engine := newBankingEngine(t)

	dec, err := engine.Evaluate(context.Background(), "Tell me about the weather in Lisbon next week")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, dec.Action)
	assert.Equal(t, "no allowed topic mentioned", dec.Reason)
}

func TestScopeEngineExemptsShortMessages(t *testing.T) {
	engine := newBankingEngine(t)

	for _, msg := range []string{"hi", "thanks a lot", "ok good"} {
		dec, err := engine.Evaluate(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, ActionAllow, dec.Action, "message %q", msg)
	}
}

func TestScopeEngineEmptyTopicsAllowsEverything(t *testing.T) {
	engine, err := NewScopeEngine(context.Background(), ScopeConfig{
		OffTopicMarkers: []string{"medical advice"},
	})
	require.NoError(t, err)

	dec, err := engine.Evaluate(context.Background(), "Tell me about the weather in Lisbon next week")
	require.NoError(t, err)
	assert.Equal(t, ActionAllow, dec.Action)

	dec, err = engine.Evaluate(context.Background(), "I need some medical advice about my knee")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, dec.Action)
}

func TestScopeEngineCachesDecisions(t *testing.T) {
	engine := newBankingEngine(t)

	first, err := engine.Evaluate(context.Background(), "check my card limit please")
	require.NoError(t, err)
	second, err := engine.Evaluate(context.Background(), "check my card limit please")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	engine.FlushCache()
	third, err := engine.Evaluate(context.Background(), "check my card limit please")
	require.NoError(t, err)
	assert.Equal(t, first, third)
}
