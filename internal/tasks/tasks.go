// Package tasks runs background work (directory fills, thumbnail fetches,
// upload drains) behind an explicit submit/await/cancel interface.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// DefaultWorkers is the pool size used when NewPool is given zero.
const DefaultWorkers = 8

// ErrPoolClosed is the result of a task submitted after Close.
var ErrPoolClosed = errors.New("tasks: pool closed")

// Func is a unit of background work. It should return promptly once ctx
// is canceled.
type Func func(ctx context.Context) error

// Submitter accepts background work. Implementations never run fn on the
// caller's goroutine unless documented otherwise.
type Submitter interface {
	Submit(kind string, fn Func) *Task
}

// Task is a handle to submitted work.
type Task struct {
	ID   string
	Kind string

	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

func newTask(kind string, cancel context.CancelFunc) *Task {
	return &Task{
		ID:     uuid.New().String(),
		Kind:   kind,
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's result. Only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Await blocks until the task finishes or ctx is done.
func (t *Task) Await(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel asks the task to stop. It does not wait.
func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// run executes fn with panic recovery so one failing task cannot take the
// process down.
func run(ctx context.Context, t *Task, fn Func, logger *slog.Logger) {
	var err error

	metrics.TaskStarted()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tasks: panic in background task",
				slog.String("task_id", t.ID),
				slog.String("kind", t.Kind),
				slog.Any("panic", r),
			)

			err = fmt.Errorf("tasks: panic in %s: %v", t.Kind, r)
		}

		metrics.TaskFinished(t.Kind, err == nil)
		t.finish(err)
	}()

	err = fn(ctx)
}

// Pool runs tasks on goroutines, at most workers at a time. Submit never
// blocks; tasks wait for a slot on their own goroutine.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	running map[string]*Task
}

// NewPool creates a pool of the given size.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())

	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		stop:    stop,
		logger:  logger,
		running: make(map[string]*Task),
	}
}

// Submit schedules fn and returns its handle.
func (p *Pool) Submit(kind string, fn Func) *Task {
	ctx, cancel := context.WithCancel(p.ctx)
	t := newTask(kind, cancel)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		t.finish(ErrPoolClosed)

		return t
	}

	p.running[t.ID] = t
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer cancel()
		defer p.forget(t.ID)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			t.finish(fmt.Errorf("tasks: %s canceled before start: %w", kind, err))

			return
		}
		defer p.sem.Release(1)

		p.logger.Debug("task started", slog.String("task_id", t.ID), slog.String("kind", kind))
		run(ctx, t, fn, p.logger)

		if err := t.err; err != nil {
			p.logger.Debug("task failed",
				slog.String("task_id", t.ID),
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
		}
	}()

	return t
}

func (p *Pool) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.running, id)
}

// Cancel cancels the running task with the given id and reports whether
// it was found.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	t, ok := p.running[id]
	p.mu.Unlock()

	if ok {
		t.Cancel()
	}

	return ok
}

// Running returns the number of submitted tasks that have not finished.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.running)
}

// Close refuses new work, cancels every task, and waits for them to return
// or for ctx to be done.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.stop()

	waited := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks: waiting for tasks: %w", ctx.Err())
	}
}
