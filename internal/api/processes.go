package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerProcessRoutes(r *gin.RouterGroup) {
	r.GET("/processes", s.listProcessesByOwner)

	g := r.Group("/processes/:kind/:name")
	g.POST("/start", s.startProcess)
	g.POST("/stop", s.stopProcess)
	g.POST("/kill", s.stopProcess)
	g.POST("/restart", s.restartProcess)
	g.POST("/wait", s.waitProcess)
}

// listProcessesByOwner returns the runtime Processes owned by a given
// object key, consumed by the Proxy Rule Translator to resolve a
// Cargo/Vm upstream target's container IPs without needing direct
// store access.
func (s *Server) listProcessesByOwner(c *gin.Context) {
	kindKey := c.Query("kind_key")
	if kindKey == "" {
		c.JSON(http.StatusOK, []interface{}{})
		return
	}
	out, err := s.Process.ListByOwner(c.Request.Context(), kindKey)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func processKindKey(c *gin.Context) string {
	if c.Param("kind") == "job" {
		return c.Param("name")
	}
	return namespaceOf(c) + "." + c.Param("name")
}

func (s *Server) startProcess(c *gin.Context) {
	if err := s.Process.StartByKind(c.Request.Context(), processKindKey(c)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) stopProcess(c *gin.Context) {
	if err := s.Process.StopByKind(c.Request.Context(), processKindKey(c)); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) restartProcess(c *gin.Context) {
	key := processKindKey(c)
	if err := s.Process.StopByKind(c.Request.Context(), key); err != nil {
		c.Error(err)
		return
	}
	if err := s.Process.StartByKind(c.Request.Context(), key); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}

// waitProcess polls until every Process owned by the key has stopped,
// reporting Success or Fail; the client's own disconnect (request
// context cancellation) ends the poll, matching the spec's "no global
// timeout, client-disconnect-terminates" rule for long-running handlers.
func (s *Server) waitProcess(c *gin.Context) {
	key := processKindKey(c)
	ctx := c.Request.Context()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			procs, err := s.Process.ListByOwner(ctx, key)
			if err != nil {
				c.Error(err)
				return
			}
			_, failed, _, running, err := s.Process.CountStatus(ctx, procs)
			if err != nil {
				c.Error(err)
				return
			}
			if running == 0 {
				status := "Success"
				if failed > 0 {
					status = "Fail"
				}
				c.JSON(http.StatusOK, gin.H{"Status": status})
				return
			}
		}
	}
}
