package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on unsafe requests.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	anonymousActor    = "anonymous"
	defaultIdemKeyLen = 200
)

var defaultIdemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// IdempotencyOptions bounds accepted keys. Zero values select a 200 byte
// limit and a token charset.
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a live record exists for the key. Expiry
// is the store's concern. Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, actor, scope, key string, now time.Time) (bool, error)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := asString(c.Value(ctxKeyIdemKey))
	return k, k != ""
}

// IsReplay reports whether the key already has a stored result.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// IdempotencyScope is the (actor, scope) pair a key is bound to. Respondents
// are anonymous, so for them the session public id in the path is what
// separates one caller's keys from another's.
func IdempotencyScope(c *gin.Context) (actor, scope string) {
	actor = asString(c.Value(ctxKeyUserID))
	if actor == "" {
		actor = anonymousActor
	}
	return actor, c.Request.Method + " " + c.Request.URL.Path
}

// IdempotencyValidator checks the Idempotency-Key header on unsafe methods.
// A malformed key is rejected with 400. A key that lookup already knows marks
// the request as a replay, which also exempts it from rate limiting. Serving
// the stored result is left to the handler.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "invalid_idempotency_key",
				"message":    "Idempotency-Key must be 1-" + strconv.Itoa(maxLen) + " token characters",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			actor, scope := IdempotencyScope(c)
			if seen, err := lookup(c.Request.Context(), actor, scope, key, time.Now().UTC()); err == nil && seen {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
