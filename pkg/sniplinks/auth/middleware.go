package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyUserID is the key for user ID in gin context
const ContextKeyUserID = "user_id"

// OptionalAuth sets the user in context when a bearer token is present.
// Requests without an Authorization header continue anonymously; a header
// that is present but invalid is rejected rather than silently downgraded.
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if !authenticate(c, secret) {
			return
		}
		c.Next()
	}
}

// RequireAuth validates JWT tokens and sets user info in context
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		if !authenticate(c, secret) {
			return
		}
		c.Next()
	}
}

// authenticate parses the bearer token and aborts with 401 on failure.
func authenticate(c *gin.Context, secret []byte) bool {
	// Expect "Bearer <token>"
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
		c.Abort()
		return false
	}

	claims, err := ValidateToken(secret, strings.TrimSpace(parts[1]))
	if err != nil {
		if err == ErrExpiredToken {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has expired"})
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		}
		c.Abort()
		return false
	}

	c.Set(ContextKeyUserID, claims.UserID)
	return true
}

// GetUserID returns the user ID from the gin context
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}
