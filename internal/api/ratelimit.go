package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// UserLimiter rate limits requests per user. A nil *UserLimiter allows
// everything.
type UserLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*userLimit
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

type userLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserLimiter allows perSecond requests per user with the given burst.
// It returns nil when perSecond is not positive.
func NewUserLimiter(perSecond float64, burst int) *UserLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &UserLimiter{
		limiters: make(map[string]*userLimit),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether userID may make a request now.
func (l *UserLimiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, ul := range l.limiters {
			if now.Sub(ul.lastSeen) > limiterIdleTTL {
				delete(l.limiters, id)
			}
		}
		l.lastSweep = now
	}

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimit{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter.AllowN(now, 1)
}

func (l *UserLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
