package process

import (
	"context"
	"io"

	"github.com/docker/docker/api/types"

	"nanocld/internal/apperrors"
)

// ExecConfig is the daemon's exec request payload: the command to run
// inside a Cargo's container plus whether to attach stdin.
type ExecConfig struct {
	Cmd          []string
	AttachStdin  bool
	Env          []string
	Tty          bool
}

// ExecCreate registers an exec session on the named container without
// starting it, mirroring the two-phase create/start split the HTTP
// surface exposes as two distinct endpoints.
func (c *Controller) ExecCreate(ctx context.Context, containerID string, cfg ExecConfig) (string, error) {
	created, err := c.docker.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          cfg.Cmd,
		Env:          cfg.Env,
		Tty:          cfg.Tty,
		AttachStdin:  cfg.AttachStdin,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", apperrors.Internal("failed to create exec session", err)
	}
	return created.ID, nil
}

// ExecAttach starts a previously created exec session and returns its
// output stream.
func (c *Controller) ExecAttach(ctx context.Context, execID string, tty bool) (io.ReadWriteCloser, error) {
	attached, err := c.docker.ContainerExecAttach(ctx, execID, types.ExecStartCheck{Tty: tty})
	if err != nil {
		return nil, apperrors.Internal("failed to attach exec session", err)
	}
	return attached.Conn, nil
}

// ExecInspect reports whether an exec session has finished and with
// what exit code.
func (c *Controller) ExecInspect(ctx context.Context, execID string) (running bool, exitCode int, err error) {
	insp, err := c.docker.ContainerExecInspect(ctx, execID)
	if err != nil {
		return false, 0, apperrors.NotFound("exec session", execID)
	}
	return insp.Running, insp.ExitCode, nil
}

// Attach opens a bidirectional pipe onto a running container's console,
// used by the VM attach websocket to tunnel the qemu container's
// stdin/stdout.
func (c *Controller) Attach(ctx context.Context, containerID string) (io.ReadWriteCloser, error) {
	attached, err := c.docker.ContainerAttach(ctx, containerID, types.ContainerAttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to attach to container", err)
	}
	return attached.Conn, nil
}
