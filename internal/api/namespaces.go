package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/store"
)

func (s *Server) registerNamespaceRoutes(r *gin.RouterGroup) {
	g := r.Group("/namespaces")
	g.GET("", s.listNamespaces)
	g.POST("", s.createNamespace)
	g.GET("/:name/inspect", s.inspectNamespace)
	g.DELETE("/:name", s.deleteNamespace)
}

func (s *Server) listNamespaces(c *gin.Context) {
	out, err := s.Namespaces.List(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createNamespace(c *gin.Context) {
	var body struct {
		Name string `json:"Name"`
	}
	if err := bindDenyUnknown(c, &body); err != nil {
		c.Error(apperrors.BadInput("invalid namespace payload: %s", err))
		return
	}
	out, err := s.Namespaces.CreateObj(c.Request.Context(), body.Name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) inspectNamespace(c *gin.Context) {
	out, err := s.Namespaces.InspectObjByPK(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteNamespace(c *gin.Context) {
	if err := s.Namespaces.DelObjByPK(c.Request.Context(), c.Param("name")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// parseListFilter builds a store.Filter from common `?limit=&offset=`
// query parameters; entity-specific filters are layered on by each
// resource's own handler.
func parseListFilter(c *gin.Context) *store.Filter {
	f := store.NewFilter()
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			f.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			f.Offset = n
		}
	}
	return f
}
