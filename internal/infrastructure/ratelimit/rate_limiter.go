package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Actions with their own bucket rule. Anything else uses the default rule.
const (
	ActionSendMessage        = "send_message"
	ActionCreateConversation = "create_conversation"
	ActionTyping             = "typing"
	ActionGeneral            = "general"
)

// Rule is a token bucket shape: Burst tokens, one token back every Refill.
type Rule struct {
	Burst  int
	Refill time.Duration
}

// DefaultRules mirror how fast a person can realistically chat.
var DefaultRules = map[string]Rule{
	// 10 messages per minute
	ActionSendMessage: {Burst: 10, Refill: 6 * time.Second},
	// 5 new conversations per hour
	ActionCreateConversation: {Burst: 5, Refill: 12 * time.Minute},
	// 30 typing events per minute
	ActionTyping: {Burst: 30, Refill: 2 * time.Second},
	// 60 requests per minute
	ActionGeneral: {Burst: 60, Refill: time.Second},
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     int
	rule       Rule
	lastRefill time.Time
	lastSeen   time.Time
}

func (tb *tokenBucket) allow(now time.Time) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.lastSeen = now
	if refills := int(now.Sub(tb.lastRefill) / tb.rule.Refill); refills > 0 {
		tb.tokens += refills
		if tb.tokens > tb.rule.Burst {
			tb.tokens = tb.rule.Burst
		}
		tb.lastRefill = tb.lastRefill.Add(time.Duration(refills) * tb.rule.Refill)
	}

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}
	return false, tb.lastRefill.Add(tb.rule.Refill).Sub(now)
}

// RateLimiter keeps one bucket per key and action.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	rules   map[string]Rule
	now     func() time.Time
}

// NewRateLimiter uses DefaultRules, overridden by rules.
func NewRateLimiter(rules map[string]Rule) *RateLimiter {
	merged := make(map[string]Rule, len(DefaultRules)+len(rules))
	for k, v := range DefaultRules {
		merged[k] = v
	}
	for k, v := range rules {
		merged[k] = v
	}
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		rules:   merged,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// Allow consumes a token for key and action. When refused it returns how
// long until the next token.
func (rl *RateLimiter) Allow(key, action string) (bool, time.Duration) {
	id := key + ":" + action

	rl.mu.RLock()
	bucket, exists := rl.buckets[id]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if bucket, exists = rl.buckets[id]; !exists {
			rule := rl.ruleFor(action)
			now := rl.now()
			bucket = &tokenBucket{tokens: rule.Burst, rule: rule, lastRefill: now, lastSeen: now}
			rl.buckets[id] = bucket
		}
		rl.mu.Unlock()
	}

	return bucket.allow(rl.now())
}

func (rl *RateLimiter) ruleFor(action string) Rule {
	if rule, ok := rl.rules[action]; ok && rule.Burst > 0 && rule.Refill > 0 {
		return rule
	}
	return rl.rules[ActionGeneral]
}

// Remaining returns the tokens left for key and action, or the full burst
// when the bucket has not been used.
func (rl *RateLimiter) Remaining(key, action string) int {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key+":"+action]
	rl.mu.RUnlock()

	if !exists {
		return rl.ruleFor(action).Burst
	}
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	return bucket.tokens
}

// Cleanup drops buckets idle for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for id, bucket := range rl.buckets {
		bucket.mu.Lock()
		stale := now.Sub(bucket.lastSeen) > idle
		bucket.mu.Unlock()
		if stale {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(idle)
			}
		}
	}()
}
