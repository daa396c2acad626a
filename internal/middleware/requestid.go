// Package middleware provides the daemon's HTTP middleware chain: request
// correlation, structured logging, version gating, payload size limits,
// CORS, and error rendering.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header name clients may set or read a
	// correlation ID on.
	RequestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// RequestID generates or extracts a correlation ID for each request so
// logs and error responses can be tied back to a single call.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID reads back the correlation ID set by RequestID.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
