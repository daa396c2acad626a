package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/cache"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

const defaultNamespace = "global"

func namespaceOf(c *gin.Context) string {
	if ns := c.Query("namespace"); ns != "" {
		return ns
	}
	return defaultNamespace
}

func (s *Server) registerCargoRoutes(r *gin.RouterGroup) {
	g := r.Group("/cargoes")
	g.GET("", s.listCargoes)
	g.GET("/count", s.countCargoes)
	g.POST("", s.createCargo)
	g.PUT("/:name", s.putCargo)
	g.PATCH("/:name", s.putCargo)
	g.GET("/:name/inspect", s.inspectCargo)
	g.DELETE("/:name", s.deleteCargo)
	g.GET("/:name/histories", s.cargoHistories)
	g.PATCH("/:name/histories/:id/revert", s.revertCargoHistory)
}

func (s *Server) listCargoes(c *gin.Context) {
	f := parseListFilter(c)
	if ns := c.Query("namespace"); ns != "" {
		f.Where("namespace_name", store.Eq, ns)
	}

	listKey := cache.CargoListKey(c.Request.URL.RawQuery)
	var cached []models.Cargo
	if s.cacheGetJSON(c, listKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	out, err := s.Cargoes.List(c.Request.Context(), f)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheSetJSON(c, listKey, out, listCacheTTL)
	c.JSON(http.StatusOK, out)
}

func (s *Server) countCargoes(c *gin.Context) {
	f := parseListFilter(c)
	n, err := s.Cargoes.CountBy(c.Request.Context(), f)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"Count": n})
}

func (s *Server) createCargo(c *gin.Context) {
	var partial models.CargoSpecPartial
	if err := bindDenyUnknown(c, &partial); err != nil {
		c.Error(apperrors.BadInput("invalid cargo spec: %s", err))
		return
	}
	ns := namespaceOf(c)
	out, err := s.Cargoes.CreateObj(c.Request.Context(), ns, partial)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheInvalidate(c, cache.CargoNamespacePattern(ns))
	c.JSON(http.StatusCreated, out)
}

func (s *Server) putCargo(c *gin.Context) {
	var partial models.CargoSpecPartial
	if err := bindDenyUnknown(c, &partial); err != nil {
		c.Error(apperrors.BadInput("invalid cargo spec: %s", err))
		return
	}
	ns := namespaceOf(c)
	key := ns + "." + c.Param("name")
	out, err := s.Cargoes.PutObjByPK(c.Request.Context(), key, partial)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheInvalidate(c, cache.CargoNamespacePattern(ns))
	c.JSON(http.StatusOK, out)
}

func (s *Server) inspectCargo(c *gin.Context) {
	key := namespaceOf(c) + "." + c.Param("name")

	inspectKey := cache.CargoInspectKey(key)
	var cached models.Cargo
	if s.cacheGetJSON(c, inspectKey, &cached) {
		c.JSON(http.StatusOK, cached)
		return
	}

	out, err := s.Cargoes.InspectObjByPK(c.Request.Context(), key)
	if err != nil {
		c.Error(err)
		return
	}
	s.cacheSetJSON(c, inspectKey, out, inspectCacheTTL)
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteCargo(c *gin.Context) {
	ns := namespaceOf(c)
	key := ns + "." + c.Param("name")
	if err := s.Cargoes.DelObjByPK(c.Request.Context(), key); err != nil {
		c.Error(err)
		return
	}
	s.cacheInvalidate(c, cache.CargoNamespacePattern(ns))
	c.Status(http.StatusAccepted)
}

func (s *Server) cargoHistories(c *gin.Context) {
	key := namespaceOf(c) + "." + c.Param("name")
	limit, offset := 100, 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil {
		offset = v
	}
	out, err := s.Cargoes.Histories(c.Request.Context(), key, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) revertCargoHistory(c *gin.Context) {
	key := namespaceOf(c) + "." + c.Param("name")
	out, err := s.Cargoes.RevertHistory(c.Request.Context(), key, c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
