package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nanocld/internal/apperrors"
)

// ErrorHandler renders the last handler-recorded error as the daemon's
// {"msg"} envelope, classifying it through apperrors' closed taxonomy.
// Handlers call c.Error(err) and return rather than writing the response
// themselves.
func ErrorHandler(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := apperrors.As(c.Errors.Last().Err)
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error().Str("request_id", GetRequestID(c)).Str("details", appErr.Details).Msg(appErr.Message)
		}
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	}
}

// Recovery turns a panic into a 500 {"msg"} response instead of a bare
// connection reset, logging the recovered value.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("request_id", GetRequestID(c)).Interface("panic", r).Msg("recovered panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
			}
		}()
		c.Next()
	}
}
