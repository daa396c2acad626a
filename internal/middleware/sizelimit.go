package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultJSONPayloadCap is the daemon's default request body ceiling for
// ordinary JSON endpoints.
const DefaultJSONPayloadCap int64 = 20 * 1024 * 1024 // 20 MB

// StreamingPayloadCap is the ceiling applied to endpoints that accept a
// streamed request body (VM image import).
const StreamingPayloadCap int64 = 20 * 1024 * 1024 * 1024 // 20 GB

// SizeLimiter caps the request body at maxSize, rejecting an
// over-budget Content-Length outright and wrapping the body reader so a
// lying Content-Length can't be used to smuggle more.
func SizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"msg": "request body exceeds the maximum allowed size"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
