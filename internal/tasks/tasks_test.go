package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskKeyFormat(t *testing.T) {
	assert.Equal(t, "Cargo@global.web", TaskKey("Cargo", "global.web"))
}

func TestAddTaskRunsAction(t *testing.T) {
	m := New()
	ran := make(chan struct{})
	m.AddTask(context.Background(), "Cargo@global.web", func(ctx context.Context) error {
		close(ran)
		return nil
	}, nil)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestAddTaskSerializesSameKey(t *testing.T) {
	m := New()
	var mu sync.Mutex
	var order []int

	first := make(chan struct{})
	m.AddTask(context.Background(), "Cargo@global.web", func(ctx context.Context) error {
		<-first
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		return nil
	}, nil)

	m.AddTask(context.Background(), "Cargo@global.web", func(ctx context.Context) error {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		return nil
	}, nil)

	close(first)
	require.NoError(t, m.WaitTask(context.Background(), "Cargo@global.web"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, []int{1, 2}, order)
}

func TestAddTaskInvokesOnErrorOnFailure(t *testing.T) {
	m := New()
	errCh := make(chan error, 1)
	m.AddTask(context.Background(), "Cargo@global.web", func(ctx context.Context) error {
		return errors.New("boom")
	}, func(err error) {
		errCh <- err
	})

	select {
	case err := <-errCh:
		assert.EqualError(t, err, "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("onError was not invoked")
	}
}

func TestWaitTaskReturnsImmediatelyWithNoTask(t *testing.T) {
	m := New()
	err := m.WaitTask(context.Background(), "Cargo@none")
	assert.NoError(t, err)
}

func TestRemoveTaskCancelsQueuedWork(t *testing.T) {
	m := New()
	started := make(chan struct{})
	m.AddTask(context.Background(), "Cargo@global.web", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	<-started
	m.RemoveTask("Cargo@global.web")

	require.NoError(t, m.WaitTask(context.Background(), "Cargo@global.web"))
}
