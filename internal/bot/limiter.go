// internal/bot/limiter.go
package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedUsers bounds the limiter map; idle users are pruned past it.
const maxTrackedUsers = 10000

// Limiter hands out one token bucket per user identity.
type Limiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	users map[string]*rate.Limiter
	now   func() time.Time
}

// NewLimiter allows perMinute actions per user with the given burst.
// A non-positive perMinute disables limiting.
func NewLimiter(perMinute, burst int) *Limiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limit: limit,
		burst: burst,
		users: make(map[string]*rate.Limiter),
		now:   time.Now,
	}
}

// Allow reports whether identity may act now and consumes a token if so.
func (l *Limiter) Allow(identity string) bool {
	if l == nil || l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.users[identity]
	if !ok {
		if len(l.users) >= maxTrackedUsers {
			l.prune()
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.users[identity] = lim
	}
	return lim.AllowN(l.now(), 1)
}

// prune drops users whose bucket has refilled completely. Caller holds mu.
func (l *Limiter) prune() {
	now := l.now()
	for id, lim := range l.users {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.users, id)
		}
	}
}

func (l *Limiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
