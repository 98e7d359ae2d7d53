// File: internal/concurrency/taskqueue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TaskQueue is the inbox of the reactor thread. Producers push closures from
// any goroutine; the owner drains them in batches between polls. Tasks are
// executed in the order they were pushed.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// Task is a unit of work executed on the draining goroutine.
type Task func()

// TaskQueue is an unbounded MPSC queue of tasks.
type TaskQueue struct {
	mu      sync.Mutex
	tasks   *queue.Queue
	closed  bool
	wake    func()
	onPanic func(any)
}

// NewTaskQueue creates a queue. wake is called after every successful Push
// so that a blocked consumer can notice new work; onPanic receives values
// recovered from panicking tasks. Both may be nil.
func NewTaskQueue(wake func(), onPanic func(any)) *TaskQueue {
	return &TaskQueue{
		tasks:   queue.New(),
		wake:    wake,
		onPanic: onPanic,
	}
}

// Push appends a task. Returns false once the queue is closed.
func (tq *TaskQueue) Push(t Task) bool {
	tq.mu.Lock()
	if tq.closed {
		tq.mu.Unlock()
		return false
	}
	tq.tasks.Add(t)
	tq.mu.Unlock()
	if tq.wake != nil {
		tq.wake()
	}
	return true
}

// Pending returns the number of queued tasks.
func (tq *TaskQueue) Pending() int {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return tq.tasks.Length()
}

// Drain runs every task queued at the time of the call and returns how many
// ran. Tasks pushed by running tasks are left for the next Drain.
func (tq *TaskQueue) Drain() int {
	tq.mu.Lock()
	n := tq.tasks.Length()
	batch := make([]Task, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, tq.tasks.Remove().(Task))
	}
	tq.mu.Unlock()

	for _, t := range batch {
		tq.run(t)
	}
	return len(batch)
}

func (tq *TaskQueue) run(t Task) {
	defer func() {
		if p := recover(); p != nil && tq.onPanic != nil {
			tq.onPanic(p)
		}
	}()
	t()
}

// Close rejects further pushes and discards queued tasks, returning how
// many were dropped.
func (tq *TaskQueue) Close() int {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	if tq.closed {
		return 0
	}
	tq.closed = true
	dropped := tq.tasks.Length()
	tq.tasks = queue.New()
	return dropped
}
