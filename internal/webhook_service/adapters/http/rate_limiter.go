package http

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aradsms/wa_gateway/internal/platform/settings"
	"github.com/aradsms/wa_gateway/internal/webhook_service/domain"
)

const (
	defaultRateLimitRPS   = 50.0
	defaultRateLimitBurst = 100
)

// RateLimiter keeps one token bucket per client key. Limits are re-read from
// settings on every check so changes apply without a restart.
type RateLimiter struct {
	settings settings.Provider
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimiter(sp settings.Provider) *RateLimiter {
	return &RateLimiter{
		settings: sp,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimiter) limits() (rate.Limit, int) {
	rps := rl.settings.GetFloat(settings.KeyRateLimitRPS, defaultRateLimitRPS)
	burst := rl.settings.GetInt(settings.KeyRateLimitBurst, defaultRateLimitBurst)
	if rps <= 0 {
		rps = defaultRateLimitRPS
	}
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	return rate.Limit(rps), burst
}

// Allow takes one token for key. On refusal it returns a
// *domain.RateLimitError with the remaining budget and reset hint.
func (rl *RateLimiter) Allow(key string) (remaining int, err error) {
	limit, burst := rl.limits()
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(limit, burst)
		rl.limiters[key] = l
	} else {
		if l.Limit() != limit {
			l.SetLimitAt(now, limit)
		}
		if l.Burst() != burst {
			l.SetBurstAt(now, burst)
		}
	}

	if l.AllowN(now, 1) {
		return int(math.Max(0, math.Floor(l.TokensAt(now)))), nil
	}

	missing := 1 - l.TokensAt(now)
	resetAfter := time.Duration(missing / float64(limit) * float64(time.Second))
	return 0, &domain.RateLimitError{Limit: burst, Remaining: 0, ResetAfter: resetAfter}
}

// Sweep drops buckets that have refilled completely.
func (rl *RateLimiter) Sweep() int {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, l := range rl.limiters {
		if l.TokensAt(now) >= float64(l.Burst()) {
			delete(rl.limiters, key)
			n++
		}
	}
	return n
}

// Run sweeps idle buckets every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Sweep()
		case <-ctx.Done():
			return nil
		}
	}
}
