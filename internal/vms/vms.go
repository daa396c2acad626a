// Package vms implements the Vm Object Manager: like Cargo but backed by
// a VM disk image, with the same "{namespace}.{name}" key rule. It owns
// one Process (the runtime container encapsulating the VM) and
// validates the referenced VmImage exists before allowing a create.
package vms

import (
	"context"
	"encoding/json"
	"strings"

	"nanocld/internal/apperrors"
	"nanocld/internal/events"
	"nanocld/internal/models"
	"nanocld/internal/objstatus"
	"nanocld/internal/specs"
	"nanocld/internal/store"
)

const kindName = "Vm"

type Table struct{}

func (Table) TableName() string        { return "vms" }
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

func scan(row store.RowScanner) (models.Vm, error) {
	var v models.Vm
	err := row.Scan(&v.Key, &v.Name, &v.NamespaceName, &v.CreatedAt, &v.SpecKey)
	return v, err
}

// imageChecker is the narrow capability this manager needs from the VM
// Image Manager, avoiding an import cycle.
type imageChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// Manager is the Vm Object Manager.
type Manager struct {
	repo   *store.Repository[models.Vm]
	specs  *specs.Registry
	status *objstatus.Store
	bus    *events.Bus
	images imageChecker
}

func New(gw *store.Gateway, sp *specs.Registry, st *objstatus.Store, bus *events.Bus, images imageChecker) *Manager {
	return &Manager{
		repo:   store.NewRepository[models.Vm](gw, Table{}, scan),
		specs:  sp,
		status: st,
		bus:    bus,
		images: images,
	}
}

func key(namespace, name string) string { return namespace + "." + name }

func validateName(name string) error {
	if name == "" {
		return apperrors.BadInput("vm name cannot be empty")
	}
	if strings.Contains(name, ".") {
		return apperrors.BadInput("vm name %q must not contain '.'", name)
	}
	return nil
}

// CreateObj validates the name and the referenced VmImage, then writes
// the Spec/Vm/ObjPsStatus rows and emits the Normal/Create event.
func (m *Manager) CreateObj(ctx context.Context, namespace string, partial models.VmSpecPartial) (models.Vm, error) {
	if err := validateName(partial.Name); err != nil {
		return models.Vm{}, err
	}
	if partial.Disk.Image == "" {
		return models.Vm{}, apperrors.BadInput("vm disk image cannot be empty")
	}
	exists, err := m.images.Exists(ctx, partial.Disk.Image)
	if err != nil {
		return models.Vm{}, err
	}
	if !exists {
		return models.Vm{}, apperrors.NotFound("vmimage", partial.Disk.Image)
	}

	k := key(namespace, partial.Name)
	data, err := json.Marshal(partial)
	if err != nil {
		return models.Vm{}, apperrors.BadInput("invalid vm spec: %s", err)
	}
	spec, err := m.specs.Write(ctx, kindName, k, "v0.1", data, nil)
	if err != nil {
		return models.Vm{}, err
	}

	vm := models.Vm{Key: k, Name: partial.Name, NamespaceName: namespace, SpecKey: spec.Key}
	insert := `
		INSERT INTO vms (key, name, namespace_name, created_at, spec_key)
		VALUES ($1, $2, $3, now(), $4)
	`
	if err := m.repo.Create(ctx, insert, vm.Key, vm.Name, vm.NamespaceName, vm.SpecKey); err != nil {
		return models.Vm{}, err
	}
	if err := m.status.Create(ctx, k, models.StatusCreate, models.StatusCreate); err != nil {
		return models.Vm{}, err
	}
	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: string(models.StatusCreate),
		Reason: "vm created",
		Actor:  &models.Actor{Kind: models.ActorVm, Key: k},
	}); err != nil {
		return models.Vm{}, err
	}
	return m.InspectObjByPK(ctx, k)
}

func (m *Manager) InspectObjByPK(ctx context.Context, key string) (models.Vm, error) {
	vm, err := m.repo.ReadByPK(ctx, key)
	if err != nil {
		return models.Vm{}, err
	}
	spec, err := m.specs.ByKey(ctx, vm.SpecKey)
	if err == nil {
		vs := models.VmSpec{Key: spec.Key, CreatedAt: spec.CreatedAt, Version: spec.Version, VmKey: spec.KindKey}
		_ = json.Unmarshal(spec.Data, &vs.VmSpecPartial)
		vs.Name = vs.VmSpecPartial.Name
		vm.Spec = &vs
	}
	status, err := m.status.ReadByPK(ctx, key)
	if err == nil {
		vm.Status = &status
	}
	return vm, nil
}

// PutObjByPK writes a new Spec version, repoints spec_key, and
// transitions to Updating; the Reconciler drives the rollout.
func (m *Manager) PutObjByPK(ctx context.Context, key string, partial models.VmSpecPartial) (models.Vm, error) {
	if err := validateName(partial.Name); err != nil {
		return models.Vm{}, err
	}
	data, err := json.Marshal(partial)
	if err != nil {
		return models.Vm{}, apperrors.BadInput("invalid vm spec: %s", err)
	}
	spec, err := m.specs.Write(ctx, kindName, key, "v0.1", data, nil)
	if err != nil {
		return models.Vm{}, err
	}
	if err := m.repo.UpdatePK(ctx, key, map[string]interface{}{"spec_key": spec.Key}); err != nil {
		return models.Vm{}, err
	}
	if err := m.status.UpdateWanted(ctx, key, models.StatusUpdate); err != nil {
		return models.Vm{}, err
	}
	if err := m.status.UpdateActual(ctx, key, models.StatusUpdate); err != nil {
		return models.Vm{}, err
	}
	if err := m.bus.Emit(ctx, models.Event{
		Kind:   models.EventKindNormal,
		Action: "Updating",
		Reason: "vm spec updated",
		Actor:  &models.Actor{Kind: models.ActorVm, Key: key},
	}); err != nil {
		return models.Vm{}, err
	}
	return m.InspectObjByPK(ctx, key)
}

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
		Reason: "vm deletion requested",
		Actor:  &models.Actor{Kind: models.ActorVm, Key: key},
	})
}

// FinalizeDelete removes the Vm row and its Spec history, called by the
// Reconciler once the owned Process is gone.
func (m *Manager) FinalizeDelete(ctx context.Context, key string) error {
	if _, err := m.specs.DeleteAllFor(ctx, key); err != nil {
		return err
	}
	return m.repo.DeleteByPK(ctx, key)
}

func (m *Manager) List(ctx context.Context, f *store.Filter) ([]models.Vm, error) {
	return m.repo.ReadBy(ctx, f)
}

func (m *Manager) CountBy(ctx context.Context, f *store.Filter) (int64, error) {
	return m.repo.CountBy(ctx, f)
}

// CountByNamespace satisfies namespaces.vmLister.
func (m *Manager) CountByNamespace(ctx context.Context, namespace string) (int64, error) {
	f := store.NewFilter().Where("namespace_name", store.Eq, namespace)
	return m.repo.CountBy(ctx, f)
}
