package state

import (
	"context"

	"nanocld/internal/apperrors"
	"nanocld/internal/cargoes"
	"nanocld/internal/jobs"
	"nanocld/internal/models"
	"nanocld/internal/namespaces"
	"nanocld/internal/process"
	"nanocld/internal/resources"
	"nanocld/internal/secrets"
	"nanocld/internal/vms"
)

// Driver replays a parsed Statefile against the Object Managers,
// publishing one StateStreamItem per entity as it resolves.
type Driver struct {
	Namespaces *namespaces.Manager
	Cargoes    *cargoes.Manager
	Vms        *vms.Manager
	Jobs       *jobs.Manager
	Secrets    *secrets.Manager
	Resources  *resources.Manager
	Process    *process.Controller
}

func isNotFound(err error) bool {
	return apperrors.As(err).Kind == apperrors.KindNotFound
}

// Apply creates or updates every entity the Statefile declares, in
// dependency order (namespace, secrets, resources, cargoes, vms, jobs),
// and starts the Processes backing cargoes/vms/jobs it just resolved.
// items is closed when every entity has reached a terminal status.
func (d *Driver) Apply(ctx context.Context, sf Statefile, items chan<- models.StateStreamItem) {
	defer close(items)

	ns := sf.namespaceOf()
	if _, err := d.Namespaces.InspectObjByPK(ctx, ns); err != nil {
		if !isNotFound(err) {
			items <- item(ns, models.StateKindNamespace, models.StateFailed, err)
		} else if _, cErr := d.Namespaces.CreateObj(ctx, ns); cErr != nil {
			items <- item(ns, models.StateKindNamespace, models.StateFailed, cErr)
		} else {
			items <- item(ns, models.StateKindNamespace, models.StateSuccess, nil)
		}
	}

	for _, sec := range sf.Secrets {
		d.applySecret(ctx, sec, items)
	}
	for _, res := range sf.Resources {
		d.applyResource(ctx, res, items)
	}
	for _, c := range sf.Cargoes {
		d.applyCargo(ctx, ns, c, items)
	}
	for _, v := range sf.VirtualMachines {
		d.applyVm(ctx, ns, v, items)
	}
	for _, j := range sf.Jobs {
		d.applyJob(ctx, j, items)
	}
}

func (d *Driver) applySecret(ctx context.Context, sec models.Secret, items chan<- models.StateStreamItem) {
	current, err := d.Secrets.InspectObjByPK(ctx, sec.Key)
	switch {
	case err != nil && isNotFound(err):
		if _, cErr := d.Secrets.CreateObj(ctx, sec); cErr != nil {
			items <- item(sec.Key, models.StateKindSecret, models.StateFailed, cErr)
			return
		}
		items <- item(sec.Key, models.StateKindSecret, models.StateSuccess, nil)
	case err != nil:
		items <- item(sec.Key, models.StateKindSecret, models.StateFailed, err)
	case unchanged(sec.Data, current.Data):
		items <- item(sec.Key, models.StateKindSecret, models.StateUnChanged, nil)
	default:
		if _, pErr := d.Secrets.PutObjByPK(ctx, sec.Key, sec.Data); pErr != nil {
			items <- item(sec.Key, models.StateKindSecret, models.StateFailed, pErr)
			return
		}
		items <- item(sec.Key, models.StateKindSecret, models.StateSuccess, nil)
	}
}

func (d *Driver) applyResource(ctx context.Context, res models.ResourcePartial, items chan<- models.StateStreamItem) {
	current, err := d.Resources.InspectObjByPK(ctx, res.Name)
	switch {
	case err != nil && isNotFound(err):
		if _, cErr := d.Resources.CreateObj(ctx, res); cErr != nil {
			items <- item(res.Name, models.StateKindResource, models.StateFailed, cErr)
			return
		}
		items <- item(res.Name, models.StateKindResource, models.StateSuccess, nil)
	case err != nil:
		items <- item(res.Name, models.StateKindResource, models.StateFailed, err)
	case current.Spec != nil && unchanged(res.Data, current.Spec.Data):
		items <- item(res.Name, models.StateKindResource, models.StateUnChanged, nil)
	default:
		if _, pErr := d.Resources.PutObjByPK(ctx, res.Name, res.Data); pErr != nil {
			items <- item(res.Name, models.StateKindResource, models.StateFailed, pErr)
			return
		}
		items <- item(res.Name, models.StateKindResource, models.StateSuccess, nil)
	}
}

func (d *Driver) applyCargo(ctx context.Context, ns string, partial models.CargoSpecPartial, items chan<- models.StateStreamItem) {
	key := ns + "." + partial.Name
	current, err := d.Cargoes.InspectObjByPK(ctx, key)
	switch {
	case err != nil && isNotFound(err):
		if _, cErr := d.Cargoes.CreateObj(ctx, ns, partial); cErr != nil {
			items <- item(key, models.StateKindCargo, models.StateFailed, cErr)
			return
		}
	case err != nil:
		items <- item(key, models.StateKindCargo, models.StateFailed, err)
		return
	case current.Spec != nil && unchanged(partial, current.Spec.CargoSpecPartial):
		items <- item(key, models.StateKindCargo, models.StateUnChanged, nil)
		return
	default:
		if _, pErr := d.Cargoes.PutObjByPK(ctx, key, partial); pErr != nil {
			items <- item(key, models.StateKindCargo, models.StateFailed, pErr)
			return
		}
	}
	if sErr := d.Process.StartByKind(ctx, key); sErr != nil {
		items <- item(key, models.StateKindCargo, models.StateFailed, sErr)
		return
	}
	items <- item(key, models.StateKindCargo, models.StateSuccess, nil)
}

func (d *Driver) applyVm(ctx context.Context, ns string, partial models.VmSpecPartial, items chan<- models.StateStreamItem) {
	key := ns + "." + partial.Name
	current, err := d.Vms.InspectObjByPK(ctx, key)
	switch {
	case err != nil && isNotFound(err):
		if _, cErr := d.Vms.CreateObj(ctx, ns, partial); cErr != nil {
			items <- item(key, models.StateKindVirtualMachine, models.StateFailed, cErr)
			return
		}
	case err != nil:
		items <- item(key, models.StateKindVirtualMachine, models.StateFailed, err)
		return
	case current.Spec != nil && unchanged(partial, current.Spec.VmSpecPartial):
		items <- item(key, models.StateKindVirtualMachine, models.StateUnChanged, nil)
		return
	default:
		if _, pErr := d.Vms.PutObjByPK(ctx, key, partial); pErr != nil {
			items <- item(key, models.StateKindVirtualMachine, models.StateFailed, pErr)
			return
		}
	}
	if sErr := d.Process.StartByKind(ctx, key); sErr != nil {
		items <- item(key, models.StateKindVirtualMachine, models.StateFailed, sErr)
		return
	}
	items <- item(key, models.StateKindVirtualMachine, models.StateSuccess, nil)
}

// applyJob has no update path (the Job Object Manager exposes no
// PutObjByPK): re-applying an existing Job reports UnChanged without
// modifying its declaration, and only a brand-new name is created and
// started.
func (d *Driver) applyJob(ctx context.Context, partial models.JobPartial, items chan<- models.StateStreamItem) {
	key := partial.Name
	if _, err := d.Jobs.InspectObjByPK(ctx, key); err == nil {
		items <- item(key, models.StateKindJob, models.StateUnChanged, nil)
		return
	} else if !isNotFound(err) {
		items <- item(key, models.StateKindJob, models.StateFailed, err)
		return
	}
	if _, err := d.Jobs.CreateObj(ctx, partial); err != nil {
		items <- item(key, models.StateKindJob, models.StateFailed, err)
		return
	}
	if err := d.Process.StartByKind(ctx, key); err != nil {
		items <- item(key, models.StateKindJob, models.StateFailed, err)
		return
	}
	items <- item(key, models.StateKindJob, models.StateSuccess, nil)
}

// Remove tears down every entity the Statefile declares, in reverse
// dependency order, reporting NotFound for entities that no longer
// exist rather than treating that as an error.
func (d *Driver) Remove(ctx context.Context, sf Statefile, items chan<- models.StateStreamItem) {
	defer close(items)

	ns := sf.namespaceOf()
	for _, j := range sf.Jobs {
		d.removeOne(ctx, j.Name, models.StateKindJob, d.Jobs.DelObjByPK, items)
	}
	for _, v := range sf.VirtualMachines {
		key := ns + "." + v.Name
		d.removeOne(ctx, key, models.StateKindVirtualMachine, d.Vms.DelObjByPK, items)
	}
	for _, c := range sf.Cargoes {
		key := ns + "." + c.Name
		d.removeOne(ctx, key, models.StateKindCargo, d.Cargoes.DelObjByPK, items)
	}
	for _, res := range sf.Resources {
		d.removeOne(ctx, res.Name, models.StateKindResource, d.Resources.DelObjByPK, items)
	}
	for _, sec := range sf.Secrets {
		d.removeOne(ctx, sec.Key, models.StateKindSecret, d.Secrets.DelObjByPK, items)
	}
}

func (d *Driver) removeOne(ctx context.Context, key string, kind models.StateKind, del func(context.Context, string) error, items chan<- models.StateStreamItem) {
	err := del(ctx, key)
	switch {
	case err == nil:
		items <- item(key, kind, models.StateSuccess, nil)
	case isNotFound(err):
		items <- item(key, kind, models.StateNotFound, nil)
	default:
		items <- item(key, kind, models.StateFailed, err)
	}
}
