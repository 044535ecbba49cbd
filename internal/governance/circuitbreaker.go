package governance

import (
	"sync"
	"time"
)

// BreakerState is the lifecycle state of a provider circuit breaker.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig bounds the failure tolerance of a single breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before permitting a
	// single half-open trial request.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default 5-failure, 30s-cooldown breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// Breaker is a three-state circuit breaker guarding one upstream provider.
// Closed passes traffic and counts consecutive failures. Open rejects until
// the cooldown elapses. Half-open admits exactly one trial request; its
// outcome decides between Closed and a fresh Open cooldown.
type Breaker struct {
	mu sync.Mutex

	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    bool

	config BreakerConfig
	now    func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	return &Breaker{
		state:  StateClosed,
		config: config,
		now:    time.Now,
	}
}

// Allow reports whether a request may pass. An open breaker whose cooldown
// has elapsed transitions to half-open and admits the caller as the single
// trial; concurrent callers are rejected until Record settles the trial.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenInFlight = true
		return true
	case StateHalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	}
	return false
}

// Record reports the outcome of a request admitted by Allow. A half-open
// success closes the breaker and clears the failure count; a half-open
// failure reopens it for a full cooldown. Closed failures accumulate and
// trip the breaker at the threshold.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenInFlight = false
		if success {
			b.state = StateClosed
			b.consecutiveFailures = 0
		} else {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateClosed:
		if success {
			b.consecutiveFailures = 0
			return
		}
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateOpen:
		// A failure report while already open restarts the cooldown.
		if !success {
			b.openedAt = b.now()
		}
	}
}

// State returns the breaker's current state without side effects.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Remaining returns the time left in the current cooldown, or zero when the
// breaker is not open.
func (b *Breaker) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0
	}
	left := b.config.Cooldown - b.now().Sub(b.openedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Transition describes a breaker state change reported to the manager's
// callback.
type Transition struct {
	Provider string
	From     BreakerState
	To       BreakerState
}

// BreakerManager holds one breaker per upstream provider and surfaces state
// transitions for audit logging.
type BreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   BreakerConfig

	onTransition func(Transition)
}

// NewBreakerManager creates a manager that lazily builds breakers with the
// given config. onTransition may be nil.
func NewBreakerManager(config BreakerConfig, onTransition func(Transition)) *BreakerManager {
	def := DefaultBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	return &BreakerManager{
		breakers:     make(map[string]*Breaker),
		config:       config,
		onTransition: onTransition,
	}
}

// Get returns the breaker for a provider, creating it on first use.
func (m *BreakerManager) Get(provider string) *Breaker {
	m.mu.RLock()
	b, ok := m.breakers[provider]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(m.config)
	m.breakers[provider] = b
	return b
}

// Allow reports whether the provider's breaker admits a request.
func (m *BreakerManager) Allow(provider string) bool {
	return m.Get(provider).Allow()
}

// Record reports a request outcome for a provider and notifies the
// transition callback if the breaker changed state.
func (m *BreakerManager) Record(provider string, success bool) {
	b := m.Get(provider)
	before := b.State()
	b.Record(success)
	after := b.State()
	if before != after && m.onTransition != nil {
		m.onTransition(Transition{Provider: provider, From: before, To: after})
	}
}

// States snapshots every known breaker's state.
func (m *BreakerManager) States() map[string]BreakerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]BreakerState, len(m.breakers))
	for provider, b := range m.breakers {
		out[provider] = b.State()
	}
	return out
}

// AllOpenRetryAfter reports whether every breaker in the manager is open and
// still cooling down, and if so the shortest remaining cooldown among them.
// An open breaker whose cooldown has elapsed is ready to admit its half-open
// trial, so it no longer blocks admission. A manager with no breakers yet is
// considered available.
func (m *BreakerManager) AllOpenRetryAfter() (bool, time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.breakers) == 0 {
		return false, 0
	}
	var min time.Duration = -1
	for _, b := range m.breakers {
		if b.State() != StateOpen {
			return false, 0
		}
		left := b.Remaining()
		if left == 0 {
			return false, 0
		}
		if min < 0 || left < min {
			min = left
		}
	}
	return true, min
}
