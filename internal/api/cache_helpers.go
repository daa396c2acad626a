package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

// inspectCacheTTL and listCacheTTL bound how stale a cached inspect/list
// response may be before the next request falls back to the store.
const (
	inspectCacheTTL = 10 * time.Second
	listCacheTTL    = 5 * time.Second
)

// cacheGetJSON reports whether key was found and unmarshaled into
// target. A nil s.Cache, or any cache error, is treated as a miss.
func (s *Server) cacheGetJSON(c *gin.Context, key string, target interface{}) bool {
	if s.Cache == nil {
		return false
	}
	return s.Cache.Get(c.Request.Context(), key, target) == nil
}

// cacheSetJSON stores value under key, best-effort: a write failure
// never affects the response already sent to the caller.
func (s *Server) cacheSetJSON(c *gin.Context, key string, value interface{}, ttl time.Duration) {
	if s.Cache == nil {
		return
	}
	_ = s.Cache.Set(c.Request.Context(), key, value, ttl)
}

// cacheInvalidate drops every cached entry matching pattern, called
// after any write. The namespace patterns used by the callers match
// inspect entries only, so a cached list response can stay stale for up
// to listCacheTTL.
func (s *Server) cacheInvalidate(c *gin.Context, pattern string) {
	if s.Cache == nil {
		return
	}
	_ = s.Cache.DeletePattern(c.Request.Context(), pattern)
}
