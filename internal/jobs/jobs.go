// Package jobs implements the Job Object Manager: a one-shot or
// scheduled sequence of containers run in declaration order. Unlike
// Cargo/Vm, a Job has no Spec history of its own — its declaration is
// stored directly on the row — but it does carry an ObjPsStatus and
// participates in the same event-driven reconciliation.
package jobs

import (
	"context"
	"encoding/json"

	"nanocld/internal/apperrors"
	"nanocld/internal/events"
	"nanocld/internal/models"
	"nanocld/internal/objstatus"
	"nanocld/internal/store"
)

type Table struct{}

func (Table) TableName() string        { return "jobs" }
func (Table) PrimaryKeyColumn() string { return "key" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"key":        {SQLPath: "key", Kind: store.KindText},
		"name":       {SQLPath: "name", Kind: store.KindText},
		"created_at": {SQLPath: "created_at", Kind: store.KindTime},
		"containers": {SQLPath: "containers", Kind: store.KindJSON},
		"ttl":        {SQLPath: "ttl", Kind: store.KindInt},
		"metadata":   {SQLPath: "metadata", Kind: store.KindJSON},
	}
}

func scan(row store.RowScanner) (models.Job, error) {
	var j models.Job
	var containers, metadata []byte
	var ttl *int64
	err := row.Scan(&j.Key, &j.Name, &j.CreatedAt, &containers, &ttl, &metadata)
	if err != nil {
		return models.Job{}, err
	}
	if len(containers) > 0 {
		if err := json.Unmarshal(containers, &j.Containers); err != nil {
			return models.Job{}, err
		}
	}
	j.TTL = ttl
	return j, nil
}

// Manager is the Job Object Manager.
type Manager struct {
	repo   *store.Repository[models.Job]
	status *objstatus.Store
	bus    *events.Bus
}

func New(gw *store.Gateway, st *objstatus.Store, bus *events.Bus) *Manager {
	return &Manager{repo: store.NewRepository[models.Job](gw, Table{}, scan), status: st, bus: bus}
}

// CreateObj validates the declaration has at least one container and
// inserts the row plus its initial ObjPsStatus, emitting Normal/Create.
func (m *Manager) CreateObj(ctx context.Context, partial models.JobPartial) (models.Job, error) {
	if partial.Name == "" {
		return models.Job{}, apperrors.BadInput("job name cannot be empty")
	}
	if len(partial.Containers) == 0 {
		return models.Job{}, apperrors.BadInput("job %q must declare at least one container", partial.Name)
	}
	key := partial.Name
	containers, err := json.Marshal(partial.Containers)
	if err != nil {
		return models.Job{}, apperrors.BadInput("invalid job containers: %s", err)
	}
	metadata, _ := json.Marshal(partial.Metadata)

	insert := `
		INSERT INTO jobs (key, name, created_at, containers, ttl, metadata)
		VALUES ($1, $2, now(), $3, $4, $5)
	`
	if err := m.repo.Create(ctx, insert, key, partial.Name, containers, partial.TTL, metadata); err != nil {
		return models.Job{}, err
	}
	if err := m.status.Create(ctx, key, models.StatusCreate, models.StatusCreate); err != nil {
		return models.Job{}, err
	}
	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: string(models.StatusCreate),
		Reason: "job created",
		Actor:  &models.Actor{Kind: models.ActorJob, Key: key},
	}); err != nil {
		return models.Job{}, err
	}
	return m.InspectObjByPK(ctx, key)
}

func (m *Manager) InspectObjByPK(ctx context.Context, key string) (models.Job, error) {
	job, err := m.repo.ReadByPK(ctx, key)
	if err != nil {
		return models.Job{}, err
	}
	status, err := m.status.ReadByPK(ctx, key)
	if err == nil {
		job.Status = &status
	}
	return job, nil
}

// DelObjByPK transitions to Destroy/Destroying; the Reconciler's
// Destroying handler removes the containers, clears any pending TTL
// timer, then finalizes the row deletion.
func (m *Manager) DelObjByPK(ctx context.Context, key string) error {
	if _, err := m.repo.ReadByPK(ctx, key); err != nil {
		return err
	}
	if err := m.status.UpdateWanted(ctx, key, models.StatusDestroy); err != nil {
		return err
	}
	if err := m.status.UpdateActual(ctx, key, models.StatusDestroy); err != nil {
		return err
	}
	return m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: "Destroying",
		Reason: "job deletion requested",
		Actor:  &models.Actor{Kind: models.ActorJob, Key: key},
	})
}

// FinalizeDelete removes the Job row, called by the Reconciler once
// every container it owned has been removed from the runtime.
func (m *Manager) FinalizeDelete(ctx context.Context, key string) error {
	return m.repo.DeleteByPK(ctx, key)
}

func (m *Manager) List(ctx context.Context, f *store.Filter) ([]models.Job, error) {
	return m.repo.ReadBy(ctx, f)
}

func (m *Manager) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	return m.repo.CountBy(ctx, f)
}
