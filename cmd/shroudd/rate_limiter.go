// rate_limiter.go - Rate limiting for the operation endpoints
package main

import (
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket. Each admitted operation
// consumes a token; tokens refill at a fixed rate up to the bucket size.
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   time.Now(),
		refillPeriod: refillPeriod,
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	refills := int(now.Sub(rl.lastRefill) / rl.refillPeriod)
	if refills > 0 {
		rl.tokens += refills * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// AccountRateLimiter keeps one bucket per shielded account, so one account
// hammering the pipelines cannot starve the others. Proof computations are
// expensive; the buckets are deliberately small.
type AccountRateLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*RateLimiter
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
}

// NewAccountRateLimiter creates a per-account rate limiter.
func NewAccountRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *AccountRateLimiter {
	return &AccountRateLimiter{
		limiters:     make(map[string]*RateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
	}
}

// Allow consumes a token from the account's bucket, creating it on first use.
func (arl *AccountRateLimiter) Allow(address string) bool {
	arl.mu.Lock()
	limiter, exists := arl.limiters[address]
	if !exists {
		limiter = NewRateLimiter(arl.maxTokens, arl.refillRate, arl.refillPeriod)
		arl.limiters[address] = limiter
	}
	arl.mu.Unlock()
	return limiter.Allow()
}
