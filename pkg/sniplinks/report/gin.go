package report

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request id.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

type ctxKey struct{}

// RequestID tags each request with an id, reusing a well-formed incoming one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// WithRequestID attaches a request id to ctx so code below the handlers
// can tag its reports.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestIDFrom returns the id attached by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Fields appends the request id carried by ctx, if any, to fields.
func Fields(ctx context.Context, fields ...any) []any {
	if id := RequestIDFrom(ctx); id != "" {
		return append(fields, "request_id", id)
	}
	return fields
}

// Recovery turns panics into 500s and reports them with the request id.
func Recovery(r Reporter) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		r.Report(fmt.Errorf("panic: %v", recovered), "handle request",
			"method", c.Request.Method, "path", c.Request.URL.Path, "request_id", GetRequestID(c))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}
