package governance

import (
	"fmt"
	"math"
	"strings"

	"github.com/aegisai/aegis-oss/pkg/domain"
)

// QuotaConfig bounds token consumption per session.
type QuotaConfig struct {
	// DailyTokenCap is the cumulative budget per session per UTC day.
	DailyTokenCap int64
	// MaxTokensPerRequest rejects any single charge larger than this.
	MaxTokensPerRequest int64
}

// DefaultQuotaConfig returns the default 50k/day, 4k/request budget.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{DailyTokenCap: 50_000, MaxTokensPerRequest: 4_000}
}

// TokenLedger tracks cumulative token consumption per session with a lazy
// daily reset: the stored day boundary is compared to "now" on each charge
// and the counter zeroed when a UTC day has rolled over. No background timer
// is involved.
type TokenLedger struct {
	store  *SessionStore
	config QuotaConfig
}

// NewTokenLedger creates a ledger backed by the shared session store.
func NewTokenLedger(store *SessionStore, config QuotaConfig) *TokenLedger {
	def := DefaultQuotaConfig()
	if config.DailyTokenCap <= 0 {
		config.DailyTokenCap = def.DailyTokenCap
	}
	if config.MaxTokensPerRequest <= 0 {
		config.MaxTokensPerRequest = def.MaxTokensPerRequest
	}
	return &TokenLedger{store: store, config: config}
}

// Charge debits amount tokens from the session's daily budget. The charge is
// atomic: either the whole amount fits under the cap or the ledger is left
// unchanged and a DailyQuotaExceeded rejection is returned.
func (tl *TokenLedger) Charge(sessionID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("governance: negative token charge %d", amount)
	}
	if amount > tl.config.MaxTokensPerRequest {
		return domain.NewValidationError(domain.KindDailyQuotaExceeded,
			fmt.Sprintf("single request of %d tokens exceeds the per-request maximum %d", amount, tl.config.MaxTokensPerRequest))
	}

	now := tl.store.now()
	sess := tl.store.acquire(sessionID)
	defer sess.mu.Unlock()

	today := dayStartUTC(now)
	if !sess.dayStart.Equal(today) {
		sess.dayStart = today
		sess.tokensUsed = 0
	}

	if sess.tokensUsed+amount > tl.config.DailyTokenCap {
		return domain.NewValidationError(domain.KindDailyQuotaExceeded,
			fmt.Sprintf("%d of %d daily tokens used", sess.tokensUsed, tl.config.DailyTokenCap))
	}

	sess.tokensUsed += amount
	return nil
}

// UsedToday reports the session's consumption since the last UTC boundary.
func (tl *TokenLedger) UsedToday(sessionID string) int64 {
	now := tl.store.now()
	sess := tl.store.acquire(sessionID)
	defer sess.mu.Unlock()

	if !sess.dayStart.Equal(dayStartUTC(now)) {
		return 0
	}
	return sess.tokensUsed
}

// EstimateTokens approximates the token cost of a text for callers that do
// not have an exact count from the provider. The word-count heuristic matches
// the ~1.3 tokens-per-word ratio of common English tokenizers.
func EstimateTokens(text string) int64 {
	words := len(strings.Fields(text))
	return int64(math.Ceil(float64(words) * 1.3))
}
