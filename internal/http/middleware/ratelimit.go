package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to the bucket it draws tokens from.
type KeyFunc func(*gin.Context) string

// KeyByCaller buckets a request by the most specific identity available:
// the authenticated user, then the respondent session or invite token in the
// route, then the client IP. Keys are namespaced so the kinds never collide.
//
// The limiter runs ahead of the auth group, so "user:" keys only appear when
// an earlier middleware resolved the caller.
func KeyByCaller() KeyFunc {
	return func(c *gin.Context) string {
		if uid := asString(c.Value(ctxKeyUserID)); uid != "" {
			return "user:" + uid
		}
		if pid := c.Param("publicId"); pid != "" {
			return "session:" + pid
		}
		if tok := c.Param("token"); tok != "" {
			return "invite:" + tok
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per key. Buckets idle for
// longer than the TTL are swept at most once per TTL during lookups.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst. A burst below one is raised to one.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		key:       key,
		ttl:       10 * time.Minute,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Sweep first so a stale bucket for this key starts over full.
	if now.Sub(rl.lastSweep) >= rl.ttl {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Len reports how many buckets are currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether the request is an idempotent replay, which
// is served from the stored response without spending a token.
func IsRateBypass(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyRateBypass).(bool)
	return b
}

// Handler enforces the limit. A rejected request gets 429 with the standard
// error envelope and a Retry-After in whole seconds until a token frees up.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		res := rl.bucketFor(rl.key(c), now).ReserveN(now, 1)
		wait := time.Duration(math.MaxInt64)
		if res.OK() {
			wait = res.DelayFrom(now)
		}
		if wait == 0 {
			c.Next()
			return
		}
		if res.OK() {
			res.CancelAt(now)
		}

		retry := 1
		if wait < time.Hour {
			retry = int(math.Ceil(wait.Seconds()))
		}
		rateLimited.WithLabelValues(AudienceOf(c.FullPath())).Inc()
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
