package providers

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"memoryd/internal/structures"
)

type OperationKind string

const (
	OperationRead  OperationKind = "read"
	OperationWrite OperationKind = "write"
)

type RateLimiterInterface interface {
	// Allow reports whether the tenant may proceed, and otherwise how long to wait.
	Allow(tenant string, kind OperationKind) (bool, time.Duration)
	MaxBatch() int
}

// RateLimiter keeps one token bucket per (creator, operation kind).
type RateLimiter struct {
	mu       sync.Mutex
	limits   map[string]*rate.Limiter
	reads    rate.Limit
	writes   rate.Limit
	burst    int
	maxBatch int
}

func NewRateLimiter(conf *structures.Config) RateLimiterInterface {
	rl := conf.RateLimit
	if rl.ReadsPerSecond <= 0 && rl.WritesPerSecond <= 0 {
		return &noopRateLimiter{maxBatch: rl.MaxBatch}
	}
	burst := rl.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limits:   make(map[string]*rate.Limiter),
		reads:    limitOrInf(rl.ReadsPerSecond),
		writes:   limitOrInf(rl.WritesPerSecond),
		burst:    burst,
		maxBatch: rl.MaxBatch,
	}
}

func limitOrInf(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func (rl *RateLimiter) getLimiter(tenant string, kind OperationKind) *rate.Limiter {
	key := string(kind) + ":" + tenant

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, ok := rl.limits[key]; ok {
		return limiter
	}
	limit := rl.reads
	if kind == OperationWrite {
		limit = rl.writes
	}
	limiter := rate.NewLimiter(limit, rl.burst)
	rl.limits[key] = limiter
	return limiter
}

func (rl *RateLimiter) Allow(tenant string, kind OperationKind) (bool, time.Duration) {
	reservation := rl.getLimiter(tenant, kind).Reserve()
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) MaxBatch() int {
	return rl.maxBatch
}

type noopRateLimiter struct {
	maxBatch int
}

func (n *noopRateLimiter) Allow(_ string, _ OperationKind) (bool, time.Duration) { return true, 0 }
func (n *noopRateLimiter) MaxBatch() int                                         { return n.maxBatch }
