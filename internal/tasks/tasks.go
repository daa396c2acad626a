// Package tasks implements the Task Manager: per-object serialization of
// long-running reconciliation work. Actions on distinct objects run
// concurrently; actions on the same object (same task_key) are
// serialized by chaining onto whatever is already queued for that key.
package tasks

import (
	"context"
	"sync"

	"nanocld/internal/logger"
)

// Action is the unit of reconciliation work a task runs.
type Action func(ctx context.Context) error

// OnError is invoked with a task's error, expected to set the object's
// actual status to Fail and emit an error event.
type OnError func(err error)

// entry tracks one task_key's chain: the goroutine currently running (if
// any) signals done when it finishes, and cancel tears down the task if
// it is removed before running.
type entry struct {
	done   chan struct{}
	cancel context.CancelFunc
}

// Manager is the Task Manager (C5).
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// AddTask enqueues action under taskKey. If a task is already
// in flight for that key, the new one starts only after the prior one's
// done channel closes, serializing conflicting work on the same object
// while unrelated keys proceed concurrently.
func (m *Manager) AddTask(ctx context.Context, taskKey string, action Action, onError OnError) {
	m.mu.Lock()
	prev := m.entries[taskKey]
	taskCtx, cancel := context.WithCancel(ctx)
	e := &entry{done: make(chan struct{}), cancel: cancel}
	m.entries[taskKey] = e
	m.mu.Unlock()

	go func() {
		defer close(e.done)
		if prev != nil {
			select {
			case <-prev.done:
			case <-taskCtx.Done():
				return
			}
		}
		if taskCtx.Err() != nil {
			return
		}
		if err := action(taskCtx); err != nil {
			logger.Task().Error().Str("task_key", taskKey).Err(err).Msg("task failed")
			if onError != nil {
				onError(err)
			}
		}
		m.mu.Lock()
		if m.entries[taskKey] == e {
			delete(m.entries, taskKey)
		}
		m.mu.Unlock()
	}()
}

// WaitTask blocks until the task currently registered for taskKey, if
// any, has completed. Returns immediately if no task is in flight.
func (m *Manager) WaitTask(ctx context.Context, taskKey string) error {
	m.mu.Lock()
	e := m.entries[taskKey]
	m.mu.Unlock()
	if e == nil {
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveTask cancels any queued/running task for taskKey. Used by
// Destroying transitions, which supersede prior work on the same object.
func (m *Manager) RemoveTask(taskKey string) {
	m.mu.Lock()
	e := m.entries[taskKey]
	if e != nil {
		delete(m.entries, taskKey)
	}
	m.mu.Unlock()
	if e != nil {
		e.cancel()
	}
}

// TaskKey builds the "{actor_kind}@{object_key}" key the spec mandates.
func TaskKey(actorKind, objectKey string) string {
	return actorKind + "@" + objectKey
}
