package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/vmimage"
)

func (s *Server) registerVmImageRoutes(r *gin.RouterGroup) {
	g := r.Group("/vms/images")
	g.GET("", s.listVmImages)
	g.POST("/:name/import", s.importVmImage)
	g.POST("/:name/snapshot/:snap", s.snapshotVmImage)
	g.POST("/:name/clone/:clone", s.cloneVmImage)
	g.POST("/:name/resize", s.resizeVmImage)
	g.DELETE("/:name", s.deleteVmImage)
}

func (s *Server) listVmImages(c *gin.Context) {
	out, err := s.Images.List(c.Request.Context(), parseListFilter(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// importVmImage writes the uploaded disk image to state_dir and
// registers it as a Base image (§4.9: Create expects the file to
// already exist on disk).
func (s *Server) importVmImage(c *gin.Context) {
	name := c.Param("name")
	path := filepath.Join(s.Config.StateDir, "vm-images", name+".img")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.Error(apperrors.Internal("failed to prepare vm image directory", err))
		return
	}
	out, err := os.Create(path)
	if err != nil {
		c.Error(apperrors.Internal("failed to create vm image file", err))
		return
	}
	_, copyErr := io.Copy(out, c.Request.Body)
	closeErr := out.Close()
	if copyErr != nil {
		os.Remove(path)
		c.Error(apperrors.Internal("failed to store uploaded vm image", copyErr))
		return
	}
	if closeErr != nil {
		os.Remove(path)
		c.Error(apperrors.Internal("failed to store uploaded vm image", closeErr))
		return
	}

	img, err := s.Images.Create(c.Request.Context(), name, path)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, img)
}

func (s *Server) snapshotVmImage(c *gin.Context) {
	sizeGB, err := strconv.ParseInt(c.DefaultQuery("size", "10"), 10, 64)
	if err != nil {
		c.Error(apperrors.BadInput("invalid size: %s", err))
		return
	}
	img, err := s.Images.CreateSnap(c.Request.Context(), c.Param("snap"), sizeGB, c.Param("name"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, img)
}

// cloneVmImage streams qemu-img convert's progress as line-delimited
// JSON, terminating with a Done document carrying the new image row.
func (s *Server) cloneVmImage(c *gin.Context) {
	c.Header("Content-Type", "application/vdn.nanocl.raw-stream")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	progress := make(chan vmimage.CloneProgress)
	done := make(chan error, 1)
	go func() {
		done <- s.Images.Clone(c.Request.Context(), c.Param("clone"), c.Param("name"), progress)
	}()

	enc := json.NewEncoder(c.Writer)
	for p := range progress {
		if err := enc.Encode(p); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := <-done; err != nil {
		enc.Encode(gin.H{"Error": err.Error()})
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) resizeVmImage(c *gin.Context) {
	var body struct {
		SizeGB int64 `json:"SizeGB"`
		Shrink bool  `json:"Shrink"`
	}
	if err := bindDenyUnknown(c, &body); err != nil {
		c.Error(apperrors.BadInput("invalid resize payload: %s", err))
		return
	}
	img, err := s.Images.Resize(c.Request.Context(), c.Param("name"), body.SizeGB, body.Shrink)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, img)
}

func (s *Server) deleteVmImage(c *gin.Context) {
	if err := s.Images.DelObjByPK(c.Request.Context(), c.Param("name")); err != nil {
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
