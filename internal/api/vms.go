package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"nanocld/internal/apperrors"
	"nanocld/internal/cache"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

// vmAttachPingPeriod is the spec's 5s VM attach heartbeat, narrower than
// the teacher's 30s chat-hub ping (grounded on websocket/hub.go).
const vmAttachPingPeriod = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) registerVmRoutes(r *gin.RouterGroup) {
	g := r.Group("/vms")
	g.GET("", s.listVms)
	g.POST("", s.createVm)
	g.PUT("/:name", s.putVm)
	g.GET("/:name/inspect", s.inspectVm)
	g.DELETE("/:name", s.deleteVm)
	g.GET("/:name/attach", s.attachVm)
}

func (s *Server) listVms(c *gin.Context) {
	f := parseListFilter(c)
	if ns := c.Query("namespace"); ns != "" {
		f.Where("namespace_name", store.Eq, ns)
	}

	listKey := cache.VmListKey(c.Request.URL.RawQuery)
	var cached []models.Vm
	if s.cacheGetJSON(c, listKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	out, err := s.Vms.List(c.Request.Context(), f)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheSetJSON(c, listKey, out, listCacheTTL)
	c.JSON(http.StatusOK, out)
}

func (s *Server) createVm(c *gin.Context) {
	var partial models.VmSpecPartial
	if err := bindDenyUnknown(c, &partial); err != nil {
		c.Error(apperrors.BadInput("invalid vm spec: %s", err))
		return
	}
	ns := namespaceOf(c)
	out, err := s.Vms.CreateObj(c.Request.Context(), ns, partial)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheInvalidate(c, cache.VmNamespacePattern(ns))
	c.JSON(http.StatusCreated, out)
}

func (s *Server) putVm(c *gin.Context) {
	var partial models.VmSpecPartial
	if err := bindDenyUnknown(c, &partial); err != nil {
		c.Error(apperrors.BadInput("invalid vm spec: %s", err))
		return
	}
	ns := namespaceOf(c)
	key := ns + "." + c.Param("name")
	out, err := s.Vms.PutObjByPK(c.Request.Context(), key, partial)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheInvalidate(c, cache.VmNamespacePattern(ns))
	c.JSON(http.StatusOK, out)
}

func (s *Server) inspectVm(c *gin.Context) {
	key := namespaceOf(c) + "." + c.Param("name")

	inspectKey := cache.VmInspectKey(key)
	var cached models.Vm
	if s.cacheGetJSON(c, inspectKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	out, err := s.Vms.InspectObjByPK(c.Request.Context(), key)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheSetJSON(c, inspectKey, out, inspectCacheTTL)
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteVm(c *gin.Context) {
	ns := namespaceOf(c)
	key := ns + "." + c.Param("name")
	if err := s.Vms.DelObjByPK(c.Request.Context(), key); err != nil {
		c.Error(err)
		return
	}
	s.cacheInvalidate(c, cache.VmNamespacePattern(ns))
	c.Status(http.StatusAccepted)
}

// attachVm upgrades to a websocket and tunnels bytes bidirectionally
// onto the Vm's running qemu container, pinging every 5s to detect a
// dead peer (§4.10).
func (s *Server) attachVm(c *gin.Context) {
	key := namespaceOf(c) + "." + c.Param("name")
	processes, err := s.Process.ListByOwner(c.Request.Context(), key)
	if err != nil || len(processes) == 0 {
		c.Error(apperrors.NotFound("vm process", key))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	pipe, err := s.Process.Attach(c.Request.Context(), processes[0].Key)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, []byte(err.Error()))
		return
	}
	defer pipe.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := pipe.Read(buf)
			if n > 0 {
				if err := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(vmAttachPingPeriod)
	defer ticker.Stop()
	conn.SetPongHandler(func(string) error { return nil })

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if _, err := pipe.Write(msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(vmAttachPingPeriod))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
