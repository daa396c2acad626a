// Package process implements the Process Controller: the only
// component that calls the container runtime. It owns the mapping from
// a desired Process to a runtime container, stamping the daemon's
// ownership labels on every container it creates.
package process

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"nanocld/internal/apperrors"
	"nanocld/internal/logger"
	"nanocld/internal/models"
	"nanocld/internal/store"
)

// Label keys the controller stamps on every container it creates, so
// that any container on the host can be attributed back to its owner.
const (
	LabelEnabled   = "io.nanocl"
	LabelKind      = "io.nanocl.kind"
	LabelCargoKey  = "io.nanocl.c"
	LabelVmKey     = "io.nanocl.v"
	LabelJobKey    = "io.nanocl.j"
	LabelNamespace = "io.nanocl.n"
)

// Table is the processes table's capability record.
type Table struct{}

func (Table) TableName() string        { return "processes" }
func (Table) PrimaryKeyColumn() string { return "key" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"key":        {SQLPath: "key", Kind: store.KindText},
		"name":       {SQLPath: "name", Kind: store.KindText},
		"kind":       {SQLPath: "kind", Kind: store.KindText},
		"kind_key":   {SQLPath: "kind_key", Kind: store.KindText},
		"node_key":   {SQLPath: "node_key", Kind: store.KindText},
		"data":       {SQLPath: "data", Kind: store.KindJSON},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
		"updated_at": {SQLPath: "updated_at", Kind: store.KindTime},
	}
}

func scan(row store.RowScanner) (models.Process, error) {
	var p models.Process
	err := row.Scan(&p.Key, &p.Name, &p.Kind, &p.KindKey, &p.NodeKey, &p.Data, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Controller is the Process Controller (C6).
type Controller struct {
	docker *client.Client
	node   string
	repo   *store.Repository[models.Process]
}

// New wraps an already-constructed Docker Engine client. node identifies
// this host for Process.NodeKey.
func New(docker *client.Client, gw *store.Gateway, node string) *Controller {
	return &Controller{docker: docker, node: node, repo: store.NewRepository[models.Process](gw, Table{}, scan)}
}

func kindLabel(kind models.ProcessKind) string {
	switch kind {
	case models.ProcessKindCargo:
		return "cargo"
	case models.ProcessKindVm:
		return "vm"
	case models.ProcessKindJob:
		return "job"
	default:
		return "unknown"
	}
}

func ownerLabelKey(kind models.ProcessKind) string {
	switch kind {
	case models.ProcessKindCargo:
		return LabelCargoKey
	case models.ProcessKindVm:
		return LabelVmKey
	case models.ProcessKindJob:
		return LabelJobKey
	default:
		return LabelCargoKey
	}
}

// Create creates (without starting) a new runtime container for a Cargo/Vm/Job instance,
// stamps the ownership labels, and records the resulting Process row.
func (c *Controller) Create(ctx context.Context, kind models.ProcessKind, name, kindKey, namespaceName string, cfg models.ContainerConfig) (models.Process, error) {
	labels := map[string]string{}
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	labels[LabelEnabled] = "enabled"
	labels[LabelKind] = kindLabel(kind)
	labels[ownerLabelKey(kind)] = kindKey
	labels[LabelNamespace] = namespaceName

	containerCfg := &container.Config{
		Image:  cfg.Image,
		Env:    cfg.Env,
		Cmd:    cfg.Cmd,
		Labels: labels,
	}
	var hostCfg container.HostConfig
	if len(cfg.HostConfig) > 0 {
		if err := decodeHostConfig(cfg.HostConfig, &hostCfg); err != nil {
			return models.Process{}, apperrors.BadInput("invalid host config: %s", err)
		}
	}

	resp, err := c.docker.ContainerCreate(ctx, containerCfg, &hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return models.Process{}, apperrors.Internal("failed to create container", err)
	}
	logger.Process().Info().Str("id", resp.ID).Str("kind_key", kindKey).Msg("container created")

	inspect, err := c.docker.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return models.Process{}, apperrors.Internal("failed to inspect created container", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, inspect.Created)
	if err != nil {
		createdAt = time.Now()
	}

	data, err := marshalInspect(inspect)
	if err != nil {
		return models.Process{}, apperrors.Internal("failed to marshal container inspect", err)
	}

	p := models.Process{
		Key:       resp.ID,
		Name:      name,
		Kind:      kind,
		KindKey:   kindKey,
		NodeKey:   c.node,
		Data:      data,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	insert := `
		INSERT INTO processes (key, name, kind, kind_key, node_key, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if err := c.repo.Create(ctx, insert, p.Key, p.Name, p.Kind, p.KindKey, p.NodeKey, p.Data, p.CreatedAt, p.UpdatedAt); err != nil {
		return models.Process{}, err
	}
	return p, nil
}

// ListByOwner returns every Process belonging to kindKey.
func (c *Controller) ListByOwner(ctx context.Context, kindKey string) ([]models.Process, error) {
	f := store.NewFilter().Where("kind_key", store.Eq, kindKey)
	return c.repo.ReadBy(ctx, f)
}

// StartByKind starts every not-yet-running Process owned by kindKey.
func (c *Controller) StartByKind(ctx context.Context, kindKey string) error {
	procs, err := c.ListByOwner(ctx, kindKey)
	if err != nil {
		return err
	}
	for _, p := range procs {
		running, err := c.isRunning(ctx, p.Key)
		if err != nil {
			return err
		}
		if running {
			continue
		}
		if err := c.docker.ContainerStart(ctx, p.Key, container.StartOptions{}); err != nil {
			return apperrors.Internal("failed to start container "+p.Key, err)
		}
	}
	return nil
}

// StopByKind stops every running Process owned by kindKey.
func (c *Controller) StopByKind(ctx context.Context, kindKey string) error {
	procs, err := c.ListByOwner(ctx, kindKey)
	if err != nil {
		return err
	}
	for _, p := range procs {
		running, err := c.isRunning(ctx, p.Key)
		if err != nil {
			return err
		}
		if !running {
			continue
		}
		if err := c.docker.ContainerStop(ctx, p.Key, container.StopOptions{}); err != nil {
			return apperrors.Internal("failed to stop container "+p.Key, err)
		}
	}
	return nil
}

func (c *Controller) isRunning(ctx context.Context, id string) (bool, error) {
	inspect, err := c.docker.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, apperrors.Internal("failed to inspect container "+id, err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

// Remove removes the runtime container and its Process row. A 404 from
// the runtime is tolerated (the container is already gone); any other
// error propagates.
func (c *Controller) Remove(ctx context.Context, key string, force bool) error {
	err := c.docker.ContainerRemove(ctx, key, container.RemoveOptions{Force: force})
	if err != nil && !client.IsErrNotFound(err) {
		return apperrors.Internal("failed to remove container "+key, err)
	}
	if err := c.repo.DeleteByPK(ctx, key); err != nil {
		if ae := apperrors.As(err); ae.Kind == apperrors.KindNotFound {
			return nil
		}
		return err
	}
	logger.Process().Info().Str("id", key).Msg("container removed")
	return nil
}

// CountStatus aggregates runtime state across a set of Processes: total,
// failed (restarting or non-zero exit), success (zero exit), running.
func (c *Controller) CountStatus(ctx context.Context, processes []models.Process) (total, failed, success, running int, err error) {
	total = len(processes)
	for _, p := range processes {
		inspect, ierr := c.docker.ContainerInspect(ctx, p.Key)
		if ierr != nil {
			if client.IsErrNotFound(ierr) {
				continue
			}
			return 0, 0, 0, 0, apperrors.Internal("failed to inspect container "+p.Key, ierr)
		}
		st := inspect.State
		if st == nil {
			continue
		}
		switch {
		case st.Running:
			running++
		case st.Restarting:
			failed++
		case st.ExitCode != 0:
			failed++
		default:
			success++
		}
	}
	return total, failed, success, running, nil
}

// ListContainersByLabel lists runtime containers, running or not,
// stamped with the given ownership label.
func (c *Controller) ListContainersByLabel(ctx context.Context, key, value string) ([]types.Container, error) {
	f := filters.NewArgs(filters.Arg("label", fmt.Sprintf("%s=%s", key, value)))
	return c.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
}
