package ingest

import (
	"sync"

	"golang.org/x/time/rate"
)

// sourceLimiter applies one token bucket per source name. Buckets are created
// lazily and never expire; the source population is admin-controlled and
// small.
type sourceLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newSourceLimiter(perSecond float64, burst int) *sourceLimiter {
	return &sourceLimiter{
		mu:       sync.Mutex{},
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether one more request from the named source may proceed.
func (l *sourceLimiter) Allow(sourceName string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[sourceName]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[sourceName] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
