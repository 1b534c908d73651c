package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/weiawesome/wes-market/pkg/response"
)

const defaultIdleTTL = 10 * time.Minute

// RateLimitConfig configures the token bucket applied per caller. Buckets
// unused for IdleTTL are dropped.
type RateLimitConfig struct {
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// RateLimiter keeps one token bucket per caller. Callers are keyed by the
// authenticated user id, falling back to the client IP.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter creates a per-caller rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &RateLimiter{
		rps:       rate.Limit(cfg.RPS),
		burst:     cfg.Burst,
		idleTTL:   ttl,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

// Handler returns the Gin middleware. A non-positive RPS disables limiting.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rps <= 0 {
			c.Next()
			return
		}

		key := GetUserID(c)
		if key == "" {
			key = c.ClientIP()
		}

		if l.limiter(key).Allow() {
			c.Next()
			return
		}
		response.Abort(c, http.StatusTooManyRequests, response.CodeTooManyRequests, "too many requests")
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL/2 {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastUsed = now
	return b.lim
}

// sweep drops idle buckets; a caller that returns starts with a full
// bucket. Must hold l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastUsed) > l.idleTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

// Len returns the number of tracked callers.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
