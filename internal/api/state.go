package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
	"nanocld/internal/state"
)

func (s *Server) registerStateRoutes(r *gin.RouterGroup) {
	g := r.Group("/state")
	g.PUT("/apply", s.stateApply)
	g.PUT("/remove", s.stateRemove)
}

func (s *Server) statefileDriver() *state.Driver {
	return &state.Driver{
		Namespaces: s.Namespaces,
		Cargoes:    s.Cargoes,
		Vms:        s.Vms,
		Jobs:       s.Jobs,
		Secrets:    s.Secrets,
		Resources:  s.Resources,
		Process:    s.Process,
	}
}

func (s *Server) readStatefile(c *gin.Context) (state.Statefile, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(apperrors.BadInput("failed to read statefile body: %s", err))
		return state.Statefile{}, false
	}
	sf, err := state.Parse(body)
	if err != nil {
		c.Error(err)
		return state.Statefile{}, false
	}
	return sf, true
}

// streamStateItems forwards driver output onto the response as it
// arrives. A client disconnect (ctx.Done()) only stops writing to the
// dead connection; it never reaches back into the driver goroutine,
// which keeps draining items so the side effects it already dispatched
// still land in the store.
func streamStateItems(c *gin.Context, items <-chan models.StateStreamItem) {
	c.Header("Content-Type", "application/vdn.nanocl.raw-stream")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	enc := json.NewEncoder(c.Writer)
	done := c.Request.Context().Done()
	for {
		select {
		case it, ok := <-items:
			if !ok {
				return
			}
			if err := enc.Encode(it); err != nil {
				drain(items)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-done:
			drain(items)
			return
		}
	}
}

func drain(items <-chan models.StateStreamItem) {
	go func() {
		for range items {
		}
	}()
}

// stateApply drives every declared entity through create-or-update,
// streaming one StateStreamItem per entity; per §5, a client disconnect
// ends the stream but not the in-flight side effects already dispatched.
func (s *Server) stateApply(c *gin.Context) {
	sf, ok := s.readStatefile(c)
	if !ok {
		return
	}
	items := make(chan models.StateStreamItem)
	go s.statefileDriver().Apply(context.Background(), sf, items)
	streamStateItems(c, items)
}

func (s *Server) stateRemove(c *gin.Context) {
	sf, ok := s.readStatefile(c)
	if !ok {
		return
	}
	items := make(chan models.StateStreamItem)
	go s.statefileDriver().Remove(context.Background(), sf, items)
	streamStateItems(c, items)
}
