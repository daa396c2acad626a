// Package cargoes implements the Cargo Object Manager: replicated,
// long-lived container workloads keyed by "{namespace}.{name}". It owns
// validation, the create/update/delete contract, and the
// Normal/Create|Updating|Destroying event emission the Reconciler reacts
// to — it never touches the container runtime directly. The Spec, Cargo
// and status writes of one operation are separate sequential statements,
// not wrapped in a single transaction: a failure part-way leaves the
// earlier writes in place.
package cargoes

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"nanocld/internal/apperrors"
	"nanocld/internal/events"
	"nanocld/internal/models"
	"nanocld/internal/objstatus"
	"nanocld/internal/specs"
	"nanocld/internal/store"
)

const kindName = "Cargo"

// Table is the cargoes table's capability record.
type Table struct{}

func (Table) TableName() string        { return "cargoes" }
func (Table) PrimaryKeyColumn() string { return "key" }
func (Table) Columns() map[string]store.Column {
	return map[string]store.Column{
		"key":            {SQLPath: "key", Kind: store.KindText},
		"name":           {SQLPath: "name", Kind: store.KindText},
		"namespace_name": {SQLPath: "namespace_name", Kind: store.KindText},
		"created_at":     {SQLPath: "created_at", Kind: store.KindTime},
		"spec_key":       {SQLPath: "spec_key", Kind: store.KindText},
	}
}

func scan(row store.RowScanner) (models.Cargo, error) {
	var c models.Cargo
	err := row.Scan(&c.Key, &c.Name, &c.NamespaceName, &c.CreatedAt, &c.SpecKey)
	return c, err
}

// Manager is the Cargo Object Manager.
type Manager struct {
	gw     *store.Gateway
	repo   *store.Repository[models.Cargo]
	specs  *specs.Registry
	status *objstatus.Store
	bus    *events.Bus
}

func New(gw *store.Gateway, sp *specs.Registry, st *objstatus.Store, bus *events.Bus) *Manager {
	return &Manager{
		gw:     gw,
		repo:   store.NewRepository[models.Cargo](gw, Table{}, scan),
		specs:  sp,
		status: st,
		bus:    bus,
	}
}

func key(namespace, name string) string { return namespace + "." + name }

func validateName(name string) error {
	if name == "" {
		return apperrors.BadInput("cargo name cannot be empty")
	}
	if strings.Contains(name, ".") {
		return apperrors.BadInput("cargo name %q must not contain '.'", name)
	}
	return nil
}

// CreateObj validates the name, then writes the Spec row, the Cargo row
// pointing at it, and the initial ObjPsStatus pair in that order,
// finally emitting the Normal/Create event.
func (m *Manager) CreateObj(ctx context.Context, namespace string, partial models.CargoSpecPartial) (models.Cargo, error) {
	if err := validateName(partial.Name); err != nil {
		return models.Cargo{}, err
	}
	k := key(namespace, partial.Name)

	data, err := json.Marshal(partial)
	if err != nil {
		return models.Cargo{}, apperrors.BadInput("invalid cargo spec: %s", err)
	}

	spec, err := m.specs.Write(ctx, kindName, k, "v0.1", data, nil)
	if err != nil {
		return models.Cargo{}, err
	}

	cargo := models.Cargo{
		Key:           k,
		Name:          partial.Name,
		NamespaceName: namespace,
		CreatedAt:     time.Now(),
		SpecKey:       spec.Key,
	}
	insert := `
		INSERT INTO cargoes (key, name, namespace_name, created_at, spec_key)
		VALUES ($1, $2, $3, $4, $5)
	`
	if err := m.repo.Create(ctx, insert, cargo.Key, cargo.Name, cargo.NamespaceName, cargo.CreatedAt, cargo.SpecKey); err != nil {
		return models.Cargo{}, err
	}
	if err := m.status.Create(ctx, k, models.StatusCreate, models.StatusCreate); err != nil {
		return models.Cargo{}, err
	}

	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: string(models.StatusCreate),
		Reason: "cargo created",
		Actor:  &models.Actor{Kind: models.ActorCargo, Key: k},
	}); err != nil {
		return models.Cargo{}, err
	}
	return cargo, nil
}

// InspectObjByPK returns the Cargo row with its current Spec and Status
// joined in.
func (m *Manager) InspectObjByPK(ctx context.Context, key string) (models.Cargo, error) {
	cargo, err := m.repo.ReadByPK(ctx, key)
	if err != nil {
		return models.Cargo{}, err
	}
	spec, err := m.specs.ByKey(ctx, cargo.SpecKey)
	if err == nil {
		cs := models.CargoSpec{Key: spec.Key, CreatedAt: spec.CreatedAt, Version: spec.Version, CargoKey: spec.KindKey}
		_ = json.Unmarshal(spec.Data, &cs.CargoSpecPartial)
		cs.Name = cs.CargoSpecPartial.Name
		cargo.Spec = &cs
	}
	status, err := m.status.ReadByPK(ctx, key)
	if err == nil {
		cargo.Status = &status
	}
	return cargo, nil
}

// PutObjByPK writes a new Spec version, repoints spec_key, and
// transitions the status to Update/Updating. The Reconciler drives the
// actual rollout once it observes the Updating event.
func (m *Manager) PutObjByPK(ctx context.Context, key string, partial models.CargoSpecPartial) (models.Cargo, error) {
	if err := validateName(partial.Name); err != nil {
		return models.Cargo{}, err
	}
	data, err := json.Marshal(partial)
	if err != nil {
		return models.Cargo{}, apperrors.BadInput("invalid cargo spec: %s", err)
	}
	spec, err := m.specs.Write(ctx, kindName, key, "v0.1", data, nil)
	if err != nil {
		return models.Cargo{}, err
	}
	if err := m.repo.UpdatePK(ctx, key, map[string]interface{}{"spec_key": spec.Key}); err != nil {
		return models.Cargo{}, err
	}
	if err := m.status.UpdateWanted(ctx, key, models.StatusUpdate); err != nil {
		return models.Cargo{}, err
	}
	if err := m.status.UpdateActual(ctx, key, models.StatusUpdate); err != nil {
		return models.Cargo{}, err
	}
	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: "Updating",
		Reason: "cargo spec updated",
		Actor:  &models.Actor{Kind: models.ActorCargo, Key: key},
	}); err != nil {
		return models.Cargo{}, err
	}
	return m.InspectObjByPK(ctx, key)
}

// DelObjByPK transitions the status to Destroy/Destroying and emits the
// event; the store row itself is removed by the Reconciler once every
// owned Process has been removed from the runtime.
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
		Reason: "cargo deletion requested",
		Actor:  &models.Actor{Kind: models.ActorCargo, Key: key},
	})
}

// FinalizeDelete removes the Cargo row and its Spec history, called by
// the Reconciler once every owned Process is gone.
func (m *Manager) FinalizeDelete(ctx context.Context, key string) error {
	if _, err := m.specs.DeleteAllFor(ctx, key); err != nil {
		return err
	}
	return m.repo.DeleteByPK(ctx, key)
}

func (m *Manager) List(ctx context.Context, f *store.Filter) ([]models.Cargo, error) {
	return m.repo.ReadBy(ctx, f)
}

func (m *Manager) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	return m.repo.CountBy(ctx, f)
}

// CountByNamespace satisfies namespaces.cargoLister.
func (m *Manager) CountByNamespace(ctx context.Context, namespace string) (int64, error) {
	f := store.NewFilter().Where("namespace_name", store.Eq, namespace)
	return m.repo.CountBy(ctx, f)
}

// ListReferencingSecret returns every Cargo whose current Spec declares
// secretKey in its Secrets list, used by the Reconciler's Secret/Update
// cascade (§4.8).
func (m *Manager) ListReferencingSecret(ctx context.Context, secretKey string) ([]models.Cargo, error) {
	var all []models.Cargo
	for offset := 0; ; offset += 1000 {
		page, err := m.repo.ReadBy(ctx, store.NewFilter().WithLimit(1000, offset))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < 1000 {
			break
		}
	}
	var matched []models.Cargo
	for _, c := range all {
		full, err := m.InspectObjByPK(ctx, c.Key)
		if err != nil || full.Spec == nil {
			continue
		}
		for _, s := range full.Spec.Secrets {
			if s == secretKey {
				matched = append(matched, full)
				break
			}
		}
	}
	return matched, nil
}

// Histories lists the Cargo's full Spec history, newest first.
func (m *Manager) Histories(ctx context.Context, key string, limit, offset int) ([]models.Spec, error) {
	return m.specs.History(ctx, key, limit, offset)
}

// RevertHistory reverts key to a previous Spec version and repoints
// spec_key to the freshly written copy.
func (m *Manager) RevertHistory(ctx context.Context, key, specID string) (models.Cargo, error) {
	spec, err := m.specs.Revert(ctx, key, specID)
	if err != nil {
		return models.Cargo{}, err
	}
	if err := m.repo.UpdatePK(ctx, key, map[string]interface{}{"spec_key": spec.Key}); err != nil {
		return models.Cargo{}, err
	}
	return m.InspectObjByPK(ctx, key)
}
