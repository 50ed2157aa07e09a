// pkuhole/models/services.go
package models

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// --- Stateful Services ---

// RateLimiter throttles outbound requests, one token bucket per API action.
// The key space is the fixed set of actions, so entries are never pruned.
type RateLimiter struct {
	Mu       sync.Mutex
	Limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
}

// StorageService stores downloaded media and returns where it was put.
type StorageService interface {
	SaveFile(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	DeleteFile(ctx context.Context, path string) error
}

// --- Rate Limiter Methods ---

// NewRateLimiter creates a limiter allowing burst requests per action and
// one more every interval after that.
func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	return &RateLimiter{
		Limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    burst,
	}
}

// GetLimiter retrieves or creates the limiter for an action.
func (rl *RateLimiter) GetLimiter(action string) *rate.Limiter {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	limiter, exists := rl.Limiters[action]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(rl.every), rl.burst)
		rl.Limiters[action] = limiter
	}
	return limiter
}

// Wait blocks until a request for action may be sent or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, action string) error {
	if rl == nil {
		return nil
	}
	return rl.GetLimiter(action).Wait(ctx)
}
