package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// UsageBudget caps model spend per session within a rolling window so a
// runaway conversation cannot burn through the account.
type UsageBudget struct {
	mu      sync.Mutex
	windows map[string]*usageWindow

	maxTokens  int64
	maxCostUSD float64
	windowSize time.Duration
	now        func() time.Time
}

type usageWindow struct {
	tokens    int64
	costUSD   float64
	windowEnd time.Time
}

// NewUsageBudget creates a budget limiter. Token and cost caps apply per
// session within windowSize; a zero cap disables that check.
func NewUsageBudget(maxTokens int64, maxCostUSD float64, windowSize time.Duration) *UsageBudget {
	return &UsageBudget{
		windows:    make(map[string]*usageWindow),
		maxTokens:  maxTokens,
		maxCostUSD: maxCostUSD,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// Check returns an error if the session has exhausted its budget.
func (b *UsageBudget) Check(sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.windows[sessionID]
	if !ok || b.now().After(w.windowEnd) {
		return nil
	}
	if b.maxTokens > 0 && w.tokens >= b.maxTokens {
		return fmt.Errorf("usage budget exceeded: session %s used %d tokens (cap %d)",
			sessionID, w.tokens, b.maxTokens)
	}
	if b.maxCostUSD > 0 && w.costUSD >= b.maxCostUSD {
		return fmt.Errorf("usage budget exceeded: session %s spent $%.2f (cap $%.2f)",
			sessionID, w.costUSD, b.maxCostUSD)
	}
	return nil
}

// Record adds one run's usage to the session window.
func (b *UsageBudget) Record(sessionID string, tokens int64, costUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w, ok := b.windows[sessionID]
	if !ok || b.now().After(w.windowEnd) {
		b.windows[sessionID] = &usageWindow{
			tokens:    tokens,
			costUSD:   costUSD,
			windowEnd: b.now().Add(b.windowSize),
		}
		return
	}
	w.tokens += tokens
	w.costUSD += costUSD
}
