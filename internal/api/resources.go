package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
)

func (s *Server) registerResourceRoutes(r *gin.RouterGroup) {
	g := r.Group("/resources")
	g.GET("", s.listResources)
	g.GET("/count", s.countResources)
	g.POST("", s.createResource)
	g.PUT("/:name", s.putResource)
	g.GET("/:name/inspect", s.inspectResource)
	g.DELETE("/:name", s.deleteResource)

	k := r.Group("/resource/kinds")
	k.GET("", s.listResourceKinds)
	k.POST("", s.createResourceKind)
	k.DELETE("/:domain/:name", s.deleteResourceKind)
	k.GET("/:domain/:name/inspect", s.inspectResourceKind)
	k.GET("/:domain/:name/version/:v/inspect", s.inspectResourceKindVersion)
}

func (s *Server) listResources(c *gin.Context) {
	out, err := s.Resources.List(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) countResources(c *gin.Context) {
	n, err := s.Resources.CountBy(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"Count": n})
}

func (s *Server) createResource(c *gin.Context) {
	var partial models.ResourcePartial
	if err := bindDenyUnknown(c, &partial); err != nil {
		c.Error(apperrors.BadInput("invalid resource spec: %s", err))
		return
	}
	out, err := s.Resources.CreateObj(c.Request.Context(), partial)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) putResource(c *gin.Context) {
	var data json.RawMessage
	if err := bindDenyUnknown(c, &data); err != nil {
		c.Error(apperrors.BadInput("invalid resource data: %s", err))
		return
	}
	out, err := s.Resources.PutObjByPK(c.Request.Context(), c.Param("name"), data)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) inspectResource(c *gin.Context) {
	out, err := s.Resources.InspectObjByPK(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteResource(c *gin.Context) {
	if err := s.Resources.DelObjByPK(c.Request.Context(), c.Param("name")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listResourceKinds(c *gin.Context) {
	out, err := s.ResourceKinds.List(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createResourceKind(c *gin.Context) {
	var body struct {
		Name    string                          `json:"Name"`
		Version string                          `json:"Version"`
		Data    models.ResourceKindVersionData `json:"Data"`
	}
	if err := bindDenyUnknown(c, &body); err != nil {
		c.Error(apperrors.BadInput("invalid resource kind: %s", err))
		return
	}
	out, err := s.ResourceKinds.CreateObj(c.Request.Context(), body.Name, body.Version, body.Data)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) deleteResourceKind(c *gin.Context) {
	name := c.Param("domain") + "/" + c.Param("name")
	if err := s.ResourceKinds.DelObjByPK(c.Request.Context(), name); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) inspectResourceKind(c *gin.Context) {
	name := c.Param("domain") + "/" + c.Param("name")
	out, err := s.ResourceKinds.InspectObjByPK(c.Request.Context(), name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) inspectResourceKindVersion(c *gin.Context) {
	name := c.Param("domain") + "/" + c.Param("name")
	out, err := s.ResourceKinds.InspectVersion(c.Request.Context(), name, c.Param("v"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
