package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
)

func (s *Server) registerSecretRoutes(r *gin.RouterGroup) {
	g := r.Group("/secrets")
	g.GET("", s.listSecrets)
	g.POST("", s.createSecret)
	g.GET("/:key/inspect", s.inspectSecret)
	g.DELETE("/:key", s.deleteSecret)
	g.PATCH("/:key", s.patchSecret)
}

func (s *Server) listSecrets(c *gin.Context) {
	out, err := s.Secrets.List(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createSecret(c *gin.Context) {
	var partial models.Secret
	if err := bindDenyUnknown(c, &partial); err != nil {
		c.Error(apperrors.BadInput("invalid secret: %s", err))
		return
	}
	out, err := s.Secrets.CreateObj(c.Request.Context(), partial)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) inspectSecret(c *gin.Context) {
	out, err := s.Secrets.InspectObjByPK(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteSecret(c *gin.Context) {
	if err := s.Secrets.DelObjByPK(c.Request.Context(), c.Param("key")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) patchSecret(c *gin.Context) {
	var data json.RawMessage
	if err := bindDenyUnknown(c, &data); err != nil {
		c.Error(apperrors.BadInput("invalid secret data: %s", err))
		return
	}
	out, err := s.Secrets.PutObjByPK(c.Request.Context(), c.Param("key"), data)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
