package api

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nanocld/internal/apperrors"
	"nanocld/internal/process"
)

// outputLog is one line of a streamed exec/attach response (§4.10).
type outputLog struct {
	Kind string `json:"kind"`
	Data []byte `json:"data"`
}

const (
	outputKindStdOut  = "StdOut"
	outputKindStdErr  = "StdErr"
	outputKindConsole = "Console"
)

func (s *Server) registerExecRoutes(r *gin.RouterGroup) {
	r.POST("/cargoes/:name/exec", s.createExec)
	r.POST("/exec/:id/cargo/start", s.startExec)
	r.GET("/exec/:id/cargo/inspect", s.inspectExec)
}

func (s *Server) createExec(c *gin.Context) {
	var cfg process.ExecConfig
	if err := bindDenyUnknown(c, &cfg); err != nil {
		c.Error(apperrors.BadInput("invalid exec config: %s", err))
		return
	}
	key := namespaceOf(c) + "." + c.Param("name")
	procs, err := s.Process.ListByOwner(c.Request.Context(), key)
	if err != nil || len(procs) == 0 {
		c.Error(apperrors.NotFound("cargo process", key))
		return
	}
	id, err := s.Process.ExecCreate(c.Request.Context(), procs[0].Key, cfg)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"Id": id})
}

// startExec streams the exec session's combined stdout/stderr as
// line-delimited OutputLog JSON documents, demultiplexing Docker's
// 8-byte stream-type frame header (1=stdout, 2=stderr) per exec session
// started without a tty.
func (s *Server) startExec(c *gin.Context) {
	execID := c.Param("id")
	pipe, err := s.Process.ExecAttach(c.Request.Context(), execID, false)
	if err != nil {
		c.Error(err)
		return
	}
	defer pipe.Close()

	c.Header("Content-Type", "application/vdn.nanocl.raw-stream")
	c.Status(http.StatusOK)
	flusher, _ := c.Writer.(http.Flusher)

	header := make([]byte, 8)
	enc := json.NewEncoder(c.Writer)
	for {
		if _, err := io.ReadFull(pipe, header); err != nil {
			return
		}
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(pipe, payload); err != nil {
			return
		}
		kind := outputKindStdOut
		if header[0] == 2 {
			kind = outputKindStdErr
		}
		if err := enc.Encode(outputLog{Kind: kind, Data: payload}); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) inspectExec(c *gin.Context) {
	running, exitCode, err := s.Process.ExecInspect(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"Running": running, "ExitCode": exitCode})
}
