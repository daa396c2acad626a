package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const eventsHeartbeat = 10 * time.Second

// streamEvents subscribes to the Event Bus and emits one JSON document
// per line; an empty-payload heartbeat every 10s keeps the connection
// alive and lets a dead client be pruned on the next write failure.
func (s *Server) streamEvents(c *gin.Context) {
	ch, unsubscribe := s.Bus.SubscribeRaw()
	defer unsubscribe()

	c.Header("Content-Type", "application/vdn.nanocl.raw-stream")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	ticker := time.NewTicker(eventsHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			if len(line) == 0 {
				continue
			}
			if _, err := c.Writer.Write(line); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-ticker.C:
			if _, err := c.Writer.Write([]byte("\n")); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
