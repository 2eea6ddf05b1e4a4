package tasks

import (
	"context"
	"log/slog"
	"sync"
)

// Queue is a Submitter that holds tasks until RunPending is called. It
// makes asynchronous paths deterministic in tests and in one-shot CLI
// commands that want to drive background work explicitly.
type Queue struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending []queued
}

type queued struct {
	task *Task
	fn   Func
	ctx  context.Context
}

// NewQueue creates an empty queue.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{logger: logger}
}

// Submit enqueues fn.
func (q *Queue) Submit(kind string, fn Func) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := newTask(kind, cancel)

	q.mu.Lock()
	q.pending = append(q.pending, queued{task: t, fn: fn, ctx: ctx})
	q.mu.Unlock()

	return t
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// RunPending runs every queued task, including tasks submitted by the
// tasks it runs, on the calling goroutine and returns how many ran.
func (q *Queue) RunPending() int {
	n := 0

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()

			return n
		}

		next := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if err := next.ctx.Err(); err != nil {
			next.task.finish(err)
		} else {
			run(next.ctx, next.task, next.fn, q.logger)
		}

		next.task.cancel()
		n++
	}
}
