// Package reconciler implements the Reconciler: a single loop that
// subscribes to the Event Bus, derives the work to do per (actor kind,
// action), and submits it to the Task Manager. It is the only consumer
// that turns a desired-state event into a runtime mutation via the
// Process Controller.
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nanocld/internal/apperrors"
	"nanocld/internal/cargoes"
	"nanocld/internal/events"
	"nanocld/internal/jobs"
	"nanocld/internal/logger"
	"nanocld/internal/models"
	"nanocld/internal/objstatus"
	"nanocld/internal/process"
	"nanocld/internal/store"
	"nanocld/internal/tasks"
	"nanocld/internal/vmimage"
	"nanocld/internal/vms"
)

const jobPollInterval = 5 * time.Second

// Reconciler is the Reconciler (C8).
type Reconciler struct {
	bus     *events.Bus
	tasks   *tasks.Manager
	process *process.Controller
	cargoes *cargoes.Manager
	vms     *vms.Manager
	jobs    *jobs.Manager
	images  *vmimage.Manager
	status  *objstatus.Store

	mu        sync.Mutex
	ttlTimers map[string]*time.Timer
}

func New(bus *events.Bus, tm *tasks.Manager, proc *process.Controller, c *cargoes.Manager, v *vms.Manager, j *jobs.Manager, img *vmimage.Manager, st *objstatus.Store) *Reconciler {
	return &Reconciler{
		bus:       bus,
		tasks:     tm,
		process:   proc,
		cargoes:   c,
		vms:       v,
		jobs:      j,
		images:    img,
		status:    st,
		ttlTimers: make(map[string]*time.Timer),
	}
}

// Run subscribes to the Event Bus and drives reconciliation until ctx is
// canceled. Process/Die is approximated by periodic polling of owned
// Processes' runtime state rather than a live runtime event subscription
// — see DESIGN.md for why.
func (r *Reconciler) Run(ctx context.Context) {
	ch, unsubscribe := r.bus.SubscribeInternal()
	defer unsubscribe()

	poll := time.NewTicker(jobPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(ctx, e)
		case <-poll.C:
			r.pollJobProcesses(ctx)
		}
	}
}

// deriveNativeAction maps an Event's raw Action string, in the context
// of its Actor's kind, to the reconciler-facing action named in the
// dispatch table.
func deriveNativeAction(actorKind models.ActorKind, raw string) (models.NativeEventAction, bool) {
	switch strings.ToLower(raw) {
	case "create":
		switch actorKind {
		case models.ActorCargo, models.ActorVm, models.ActorJob:
			return models.ActionStarting, true
		}
	case "starting":
		return models.ActionStarting, true
	case "stopping":
		return models.ActionStopping, true
	case "updating":
		return models.ActionUpdating, true
	case "update":
		if actorKind == models.ActorSecret {
			return models.ActionUpdating, true
		}
	case "destroying":
		return models.ActionDestroying, true
	case "die":
		return models.ActionDie, true
	}
	return "", false
}

func (r *Reconciler) dispatch(ctx context.Context, e models.Event) {
	if e.Kind != models.EventKindNormal || e.Actor == nil {
		return
	}
	action, ok := deriveNativeAction(e.Actor.Kind, e.Action)
	if !ok {
		return
	}
	key := e.Actor.Key

	switch e.Actor.Kind {
	case models.ActorCargo:
		switch action {
		case models.ActionStarting:
			r.cargoStarting(ctx, key)
		case models.ActionStopping:
			r.cargoStopping(ctx, key)
		case models.ActionUpdating:
			r.cargoUpdating(ctx, key)
		case models.ActionDestroying:
			r.cargoDestroying(ctx, key)
		}
	case models.ActorVm:
		switch action {
		case models.ActionStarting:
			r.vmStarting(ctx, key)
		case models.ActionStopping:
			r.vmStopping(ctx, key)
		case models.ActionUpdating:
			r.vmUpdating(ctx, key)
		case models.ActionDestroying:
			r.vmDestroying(ctx, key)
		}
	case models.ActorJob:
		switch action {
		case models.ActionStarting:
			r.jobStarting(ctx, key)
		case models.ActionDestroying:
			r.jobDestroying(ctx, key)
		}
	case models.ActorSecret:
		if action == models.ActionUpdating {
			go r.secretUpdate(context.Background(), key)
		}
	}
}

// onError is the Task Manager's on_error callback: it sets the object's
// actual status to Fail and emits the corresponding terminal Error
// event, per §4.8's error propagation rule. It never returns an error
// itself since there is nothing further to propagate to.
func (r *Reconciler) onError(actorKind models.ActorKind, key, terminalAction string) tasks.OnError {
	return func(err error) {
		bg := context.Background()
		if uerr := r.status.UpdateActual(bg, key, models.StatusFail); uerr != nil {
			logger.Task().Error().Err(uerr).Str("key", key).Msg("failed to record Fail status after task error")
		}
		if eerr := r.bus.Emit(bg, models.Event{
			Kind:   models.EventKindError,
			Action: terminalAction,
			Reason: err.Error(),
			Actor:  &models.Actor{Kind: actorKind, Key: key},
		}); eerr != nil {
			logger.Task().Error().Err(eerr).Str("key", key).Msg("failed to emit error event after task error")
		}
	}
}

// --- Cargo ---

func (r *Reconciler) cargoStarting(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Cargo", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		cargo, err := r.cargoes.InspectObjByPK(taskCtx, key)
		if err != nil {
			return err
		}
		if cargo.Spec == nil {
			return apperrors.Internal("cargo has no resolved spec", nil)
		}
		procs, err := r.process.ListByOwner(taskCtx, key)
		if err != nil {
			return err
		}
		if len(procs) == 0 {
			name := cargo.NamespaceName + "-" + cargo.Name
			if _, err := r.process.Create(taskCtx, models.ProcessKindCargo, name, key, cargo.NamespaceName, cargo.Spec.Container); err != nil {
				return err
			}
		}
		if err := r.process.StartByKind(taskCtx, key); err != nil {
			return err
		}
		return r.status.UpdateActual(taskCtx, key, models.StatusStart)
	}, r.onError(models.ActorCargo, key, "Start"))
}

func (r *Reconciler) cargoStopping(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Cargo", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		if err := r.process.StopByKind(taskCtx, key); err != nil {
			return err
		}
		return r.status.UpdateActual(taskCtx, key, models.StatusStop)
	}, r.onError(models.ActorCargo, key, "Stop"))
}

// cargoUpdating creates a replacement Process from the latest Spec,
// deletes the old ones only once the replacement has started, and
// otherwise schedules a 2s rollback of the replacement while leaving the
// old Processes running — the Cargo is considered Start either way,
// since some generation of it is always up.
func (r *Reconciler) cargoUpdating(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Cargo", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		cargo, err := r.cargoes.InspectObjByPK(taskCtx, key)
		if err != nil {
			return err
		}
		if cargo.Spec == nil {
			return apperrors.Internal("cargo has no resolved spec", nil)
		}
		oldProcs, err := r.process.ListByOwner(taskCtx, key)
		if err != nil {
			return err
		}
		newName := cargo.NamespaceName + "-" + cargo.Name + "-" + uuid.New().String()[:8]
		newProc, err := r.process.Create(taskCtx, models.ProcessKindCargo, newName, key, cargo.NamespaceName, cargo.Spec.Container)
		if err != nil {
			return err
		}
		if err := r.process.StartByKind(taskCtx, key); err != nil {
			scheduleRollback(r.process, newProc.Key)
		} else {
			for _, p := range oldProcs {
				if p.Key == newProc.Key {
					continue
				}
				if err := r.process.Remove(taskCtx, p.Key, true); err != nil {
					return err
				}
			}
		}
		if err := r.status.UpdateActual(taskCtx, key, models.StatusStart); err != nil {
			return err
		}
		return r.bus.Emit(taskCtx, models.Event{
			Kind: models.EventKindNormal, Action: "Start", Reason: "cargo updated",
			Actor: &models.Actor{Kind: models.ActorCargo, Key: key},
		})
	}, r.onError(models.ActorCargo, key, "Update"))
}

func (r *Reconciler) cargoDestroying(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Cargo", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		procs, err := r.process.ListByOwner(taskCtx, key)
		if err != nil {
			return err
		}
		for _, p := range procs {
			if err := r.process.Remove(taskCtx, p.Key, true); err != nil {
				return err
			}
		}
		if err := r.cargoes.FinalizeDelete(taskCtx, key); err != nil {
			return err
		}
		return r.bus.Emit(taskCtx, models.Event{
			Kind: models.EventKindNormal, Action: "Destroy", Reason: "cargo removed",
			Actor: &models.Actor{Kind: models.ActorCargo, Key: key},
		})
	}, r.onError(models.ActorCargo, key, "Destroy"))
}

// --- Vm ---

func vmContainerConfig(snapshotName string) models.ContainerConfig {
	return models.ContainerConfig{
		Image: "ghcr.io/nxthat/nanocl-qemu:latest",
		Env:   []string{"VM_DISK=" + snapshotName},
	}
}

func (r *Reconciler) vmStarting(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Vm", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		vm, err := r.vms.InspectObjByPK(taskCtx, key)
		if err != nil {
			return err
		}
		if vm.Spec == nil {
			return apperrors.Internal("vm has no resolved spec", nil)
		}
		snapName := key + "-instance"
		exists, err := r.images.Exists(taskCtx, snapName)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := r.images.CreateSnap(taskCtx, snapName, vm.Spec.Disk.Size, vm.Spec.Disk.Image); err != nil {
				return err
			}
		}
		procs, err := r.process.ListByOwner(taskCtx, key)
		if err != nil {
			return err
		}
		if len(procs) == 0 {
			name := vm.NamespaceName + "-" + vm.Name
			if _, err := r.process.Create(taskCtx, models.ProcessKindVm, name, key, vm.NamespaceName, vmContainerConfig(snapName)); err != nil {
				return err
			}
		}
		if err := r.process.StartByKind(taskCtx, key); err != nil {
			return err
		}
		return r.status.UpdateActual(taskCtx, key, models.StatusStart)
	}, r.onError(models.ActorVm, key, "Start"))
}

func (r *Reconciler) vmStopping(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Vm", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		if err := r.process.StopByKind(taskCtx, key); err != nil {
			return err
		}
		return r.status.UpdateActual(taskCtx, key, models.StatusStop)
	}, r.onError(models.ActorVm, key, "Stop"))
}

func (r *Reconciler) vmUpdating(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Vm", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		vm, err := r.vms.InspectObjByPK(taskCtx, key)
		if err != nil {
			return err
		}
		if vm.Spec == nil {
			return apperrors.Internal("vm has no resolved spec", nil)
		}
		oldProcs, err := r.process.ListByOwner(taskCtx, key)
		if err != nil {
			return err
		}
		snapName := key + "-instance"
		newName := vm.NamespaceName + "-" + vm.Name + "-" + uuid.New().String()[:8]
		newProc, err := r.process.Create(taskCtx, models.ProcessKindVm, newName, key, vm.NamespaceName, vmContainerConfig(snapName))
		if err != nil {
			return err
		}
		if err := r.process.StartByKind(taskCtx, key); err != nil {
			scheduleRollback(r.process, newProc.Key)
		} else {
			for _, p := range oldProcs {
				if p.Key == newProc.Key {
					continue
				}
				if err := r.process.Remove(taskCtx, p.Key, true); err != nil {
					return err
				}
			}
		}
		if err := r.status.UpdateActual(taskCtx, key, models.StatusStart); err != nil {
			return err
		}
		return r.bus.Emit(taskCtx, models.Event{
			Kind: models.EventKindNormal, Action: "Start", Reason: "vm updated",
			Actor: &models.Actor{Kind: models.ActorVm, Key: key},
		})
	}, r.onError(models.ActorVm, key, "Update"))
}

func (r *Reconciler) vmDestroying(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Vm", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		procs, err := r.process.ListByOwner(taskCtx, key)
		if err != nil {
			return err
		}
		for _, p := range procs {
			if err := r.process.Remove(taskCtx, p.Key, true); err != nil {
				return err
			}
		}
		if err := r.vms.FinalizeDelete(taskCtx, key); err != nil {
			return err
		}
		if err := r.images.DelObjByPK(taskCtx, key+"-instance"); err != nil {
			logger.Task().Warn().Err(err).Str("vm", key).Msg("failed to remove vm instance snapshot")
		}
		return r.bus.Emit(taskCtx, models.Event{
			Kind: models.EventKindNormal, Action: "Destroy", Reason: "vm removed",
			Actor: &models.Actor{Kind: models.ActorVm, Key: key},
		})
	}, r.onError(models.ActorVm, key, "Destroy"))
}

// scheduleRollback removes a just-created, failed-to-start replacement
// Process after a short grace period, giving any straggling runtime
// start call a chance to settle first.
func scheduleRollback(p *process.Controller, processKey string) {
	time.AfterFunc(2*time.Second, func() {
		_ = p.Remove(context.Background(), processKey, true)
	})
}

// --- Job ---

func (r *Reconciler) jobStarting(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Job", key)
	_ = r.tasks.WaitTask(ctx, taskKey)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		job, err := r.jobs.InspectObjByPK(taskCtx, key)
		if err != nil {
			return err
		}
		for i, cfg := range job.Containers {
			name := fmt.Sprintf("%s-%d", key, i)
			if _, err := r.process.Create(taskCtx, models.ProcessKindJob, name, key, "", cfg); err != nil {
				return err
			}
			if err := r.process.StartByKind(taskCtx, key); err != nil {
				return err
			}
		}
		return r.status.UpdateActual(taskCtx, key, models.StatusStart)
	}, r.onError(models.ActorJob, key, "Start"))
}

// jobDestroying supersedes any in-flight work on the Job per §4.8's
// serialization rule: remove_task before add_task.
func (r *Reconciler) jobDestroying(ctx context.Context, key string) {
	taskKey := tasks.TaskKey("Job", key)
	r.tasks.RemoveTask(taskKey)
	r.clearTTLTimer(key)
	r.tasks.AddTask(ctx, taskKey, func(taskCtx context.Context) error {
		procs, err := r.process.ListByOwner(taskCtx, key)
		if err != nil {
			return err
		}
		for _, p := range procs {
			if err := r.process.Remove(taskCtx, p.Key, true); err != nil {
				return err
			}
		}
		return r.jobs.FinalizeDelete(taskCtx, key)
	}, r.onError(models.ActorJob, key, "Destroy"))
}

// pollJobProcesses approximates Process/Die detection for Jobs: any Job
// whose actual status is Start and whose owned Processes have all
// stopped transitions to Finish (or Fail if any instance failed), and
// schedules TTL-based deletion if configured.
func (r *Reconciler) pollJobProcesses(ctx context.Context) {
	js, err := r.jobs.List(ctx, store.NewFilter().WithLimit(500, 0))
	if err != nil {
		logger.Task().Error().Err(err).Msg("failed to list jobs for process polling")
		return
	}
	for _, j := range js {
		full, err := r.jobs.InspectObjByPK(ctx, j.Key)
		if err != nil || full.Status == nil || full.Status.Actual != models.StatusStart {
			continue
		}
		procs, err := r.process.ListByOwner(ctx, j.Key)
		if err != nil || len(procs) == 0 {
			continue
		}
		_, failed, _, running, err := r.process.CountStatus(ctx, procs)
		if err != nil || running > 0 {
			continue
		}
		outcome := models.StatusFinish
		action := "Finish"
		if failed > 0 {
			outcome = models.StatusFail
			action = "Fail"
		}
		if err := r.status.UpdateActual(ctx, j.Key, outcome); err != nil {
			logger.Task().Error().Err(err).Str("job", j.Key).Msg("failed to record job terminal status")
			continue
		}
		if err := r.bus.Emit(ctx, models.Event{
			Kind: models.EventKindNormal, Action: action, Reason: "job containers terminated",
			Actor: &models.Actor{Kind: models.ActorJob, Key: j.Key},
		}); err != nil {
			logger.Task().Error().Err(err).Str("job", j.Key).Msg("failed to emit job terminal event")
		}
		if full.TTL != nil {
			r.scheduleJobTTLDeletion(j.Key, *full.TTL)
		}
	}
}

func (r *Reconciler) scheduleJobTTLDeletion(key string, ttlSeconds int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.ttlTimers[key]; ok {
		t.Stop()
	}
	r.ttlTimers[key] = time.AfterFunc(time.Duration(ttlSeconds)*time.Second, func() {
		r.mu.Lock()
		delete(r.ttlTimers, key)
		r.mu.Unlock()
		r.jobDestroying(context.Background(), key)
	})
}

func (r *Reconciler) clearTTLTimer(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.ttlTimers[key]; ok {
		t.Stop()
		delete(r.ttlTimers, key)
	}
}

// --- Secret ---

// secretUpdate cascades a Secret update to every Cargo whose current
// Spec declares it, marking them Updating and re-emitting Cargo/Updating
// so the normal cargoUpdating task drives the actual rollout.
func (r *Reconciler) secretUpdate(ctx context.Context, secretKey string) {
	affected, err := r.cargoes.ListReferencingSecret(ctx, secretKey)
	if err != nil {
		logger.Task().Error().Err(err).Str("secret", secretKey).Msg("failed to resolve cargoes referencing updated secret")
		return
	}
	for _, c := range affected {
		if err := r.status.UpdateActual(ctx, c.Key, models.StatusUpdate); err != nil {
			logger.Task().Error().Err(err).Str("cargo", c.Key).Msg("failed to mark cargo updating for secret change")
			continue
		}
		if err := r.bus.Emit(ctx, models.Event{
			Kind: models.EventKindNormal, Action: "Updating", Reason: "referenced secret updated",
			Actor: &models.Actor{Kind: models.ActorCargo, Key: c.Key},
		}); err != nil {
			logger.Task().Error().Err(err).Str("cargo", c.Key).Msg("failed to emit cargo updating event for secret change")
		}
	}
}
