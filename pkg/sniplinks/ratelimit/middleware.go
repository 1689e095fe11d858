package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/auth"
)

// AnonymousOnly limits requests by client IP unless the request carries an
// authenticated user; those are bounded by their monthly quota instead. It
// must run after the auth middleware.
func AnonymousOnly(s *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := auth.GetUserID(c); ok {
			c.Next()
			return
		}

		if !s.Get(c.ClientIP()).Allow() {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(s.RPS())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests. Sign in or try again shortly.",
			})
			return
		}
		c.Next()
	}
}

// retryAfterSeconds is the time for one token to refill, at least a second.
func retryAfterSeconds(rps float64) int {
	if rps <= 0 {
		return 1
	}
	secs := int(math.Ceil(1 / rps))
	if secs < 1 {
		return 1
	}
	return secs
}
