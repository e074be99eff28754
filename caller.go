package memex

import (
	"context"
	"sync"
	"time"
)

// Caller identifies an external agent making a call. Trust is a scalar in
// [0,1]; agents below the configured trust threshold are denied write and
// delete operations.
type Caller struct {
	AgentID string
	Trust   float64
}

type callerKey struct{}

// WithCaller attaches an agent identity to ctx. Calls without a caller
// are treated as the local owner: fully trusted and unmetered.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom extracts the caller attached by WithCaller, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// rateLimiter is a fixed-window per-agent counter; the orchestrator keeps
// one for writes and one for reads.
type rateLimiter struct {
	mu     sync.Mutex
	perMin int
	window map[string]*agentWindow
	now    func() time.Time
}

type agentWindow struct {
	start time.Time
	count int
}

func newRateLimiter(perMin int) *rateLimiter {
	return &rateLimiter{
		perMin: perMin,
		window: make(map[string]*agentWindow),
		now:    time.Now,
	}
}

func (rl *rateLimiter) allow(agentID string) bool {
	if rl.perMin <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.window[agentID]
	if w == nil || now.Sub(w.start) >= time.Minute {
		rl.window[agentID] = &agentWindow{start: now, count: 1}
		return true
	}
	if w.count >= rl.perMin {
		return false
	}
	w.count++
	return true
}
