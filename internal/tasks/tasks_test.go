package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_SubmitAwait(t *testing.T) {
	p := NewPool(2, nil)
	defer p.Close(context.Background())

	boom := errors.New("boom")

	ok := p.Submit("test", func(context.Context) error { return nil })
	bad := p.Submit("test", func(context.Context) error { return boom })

	require.NoError(t, ok.Await(context.Background()))
	require.ErrorIs(t, bad.Await(context.Background()), boom)
	assert.ErrorIs(t, bad.Err(), boom)
	assert.NotEqual(t, ok.ID, bad.ID)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(3, nil)
	defer p.Close(context.Background())

	var (
		active atomic.Int32
		peak   atomic.Int32
	)

	release := make(chan struct{})
	handles := make([]*Task, 0, 10)

	for range 10 {
		handles = append(handles, p.Submit("load", func(context.Context) error {
			n := active.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}

			<-release
			active.Add(-1)

			return nil
		}))
	}

	require.Eventually(t, func() bool { return active.Load() == 3 }, time.Second, time.Millisecond)
	close(release)

	for _, h := range handles {
		require.NoError(t, h.Await(context.Background()))
	}

	assert.Equal(t, int32(3), peak.Load())
}

func TestPool_PanicRecovered(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Close(context.Background())

	task := p.Submit("explode", func(context.Context) error { panic("kaboom") })

	err := task.Await(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	after := p.Submit("after", func(context.Context) error { return nil })
	require.NoError(t, after.Await(context.Background()))
}

func TestPool_Cancel(t *testing.T) {
	p := NewPool(1, nil)
	defer p.Close(context.Background())

	started := make(chan struct{})
	task := p.Submit("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()

		return ctx.Err()
	})

	<-started
	assert.True(t, p.Cancel(task.ID))
	require.ErrorIs(t, task.Await(context.Background()), context.Canceled)

	require.Eventually(t, func() bool { return p.Running() == 0 }, time.Second, time.Millisecond)
	assert.False(t, p.Cancel(task.ID))
}

func TestPool_CloseRefusesNewWork(t *testing.T) {
	p := NewPool(1, nil)

	started := make(chan struct{})
	running := p.Submit("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()

		return nil
	})

	<-started
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, running.Await(context.Background()))

	late := p.Submit("late", func(context.Context) error { return nil })
	require.ErrorIs(t, late.Await(context.Background()), ErrPoolClosed)
}

func TestTask_AwaitHonorsContext(t *testing.T) {
	q := NewQueue(nil)
	task := q.Submit("never", func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, task.Await(ctx), context.Canceled)
	assert.NoError(t, task.Err(), "unfinished task reports no error")
}

func TestQueue_RunPending(t *testing.T) {
	q := NewQueue(nil)

	var order []string

	first := q.Submit("a", func(context.Context) error {
		order = append(order, "a")
		q.Submit("c", func(context.Context) error {
			order = append(order, "c")

			return nil
		})

		return nil
	})
	q.Submit("b", func(context.Context) error {
		order = append(order, "b")

		return nil
	})

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 3, q.RunPending())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 0, q.Len())

	select {
	case <-first.Done():
	default:
		t.Fatal("task not marked done")
	}
}

func TestQueue_CanceledBeforeRun(t *testing.T) {
	q := NewQueue(nil)

	var ran bool

	task := q.Submit("x", func(context.Context) error {
		ran = true

		return nil
	})
	task.Cancel()

	q.RunPending()
	assert.False(t, ran)
	assert.ErrorIs(t, task.Err(), context.Canceled)
}
