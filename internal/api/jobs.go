package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/models"
)

func (s *Server) registerJobRoutes(r *gin.RouterGroup) {
	g := r.Group("/jobs")
	g.GET("", s.listJobs)
	g.GET("/count", s.countJobs)
	g.POST("", s.createJob)
	g.GET("/:name/inspect", s.inspectJob)
	g.DELETE("/:name", s.deleteJob)
}

func (s *Server) listJobs(c *gin.Context) {
	out, err := s.Jobs.List(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) countJobs(c *gin.Context) {
	n, err := s.Jobs.CountBy(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"Count": n})
}

func (s *Server) createJob(c *gin.Context) {
	var partial models.JobPartial
	if err := bindDenyUnknown(c, &partial); err != nil {
		c.Error(apperrors.BadInput("invalid job spec: %s", err))
		return
	}
	out, err := s.Jobs.CreateObj(c.Request.Context(), partial)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) inspectJob(c *gin.Context) {
	out, err := s.Jobs.InspectObjByPK(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteJob(c *gin.Context) {
	if err := s.Jobs.DelObjByPK(c.Request.Context(), c.Param("name")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusAccepted)
}
