package middleware

import (
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket with a daily request quota.
type RateLimiter struct {
	mu         sync.Mutex
	limits     map[string]*clientLimit
	burst      float64
	perSecond  float64
	dailyLimit int
	now        func() time.Time
}

type clientLimit struct {
	tokens     float64
	lastRefill time.Time
	dailyCount int
	lastReset  time.Time
}

func NewRateLimiter(burst, perSecond float64, dailyLimit int) *RateLimiter {
	return &RateLimiter{
		limits:     make(map[string]*clientLimit),
		burst:      burst,
		perSecond:  perSecond,
		dailyLimit: dailyLimit,
		now:        time.Now,
	}
}

func (rl *RateLimiter) AllowRequest(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UTC()

	limit, exists := rl.limits[clientID]
	if !exists {
		limit = &clientLimit{
			tokens:     rl.burst,
			lastRefill: now,
			lastReset:  now,
		}
		rl.limits[clientID] = limit
	}

	// Reset daily count if it's a new day
	if now.Sub(limit.lastReset) >= 24*time.Hour {
		limit.dailyCount = 0
		limit.lastReset = now
	}
	if rl.dailyLimit > 0 && limit.dailyCount >= rl.dailyLimit {
		return false
	}

	limit.tokens += now.Sub(limit.lastRefill).Seconds() * rl.perSecond
	if limit.tokens > rl.burst {
		limit.tokens = rl.burst
	}
	limit.lastRefill = now

	if limit.tokens < 1 {
		return false
	}

	limit.tokens--
	limit.dailyCount++
	return true
}
