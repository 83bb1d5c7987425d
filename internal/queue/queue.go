// Package queue implements the preprocessor's FIFO task queue: pending work
// ordered by arrival, per-itemid sequence serialization, and a finished-task
// list drained by the dispatcher (spec.md §4.1). The queue has no capacity
// limit: PushPending never blocks, and pending and finished tasks accumulate
// for as long as nobody pops them.
//
// # Locking discipline
//
// All fields are guarded by mu. cond is bound to mu and is used to wake
// workers blocked in pop_new when new work (or shutdown) arrives. Callers
// must hold mu when calling cond.Wait/Signal/Broadcast.
package queue

import (
	"container/list"
	"errors"
	"sync"

	"firestige.xyz/pollcore/internal/model"
)

// Queue is a thread-safe task queue. The zero value is not usable; use New.
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending  *list.List           // FIFO of runnable *model.Task
	finished *list.List           // FIFO of completed *model.Task
	seqByID  map[uint64]*seqState // itemid -> active sequence, only while non-empty

	workers  int // live (registered) worker count
	stopping bool
	waitErr  error
}

// seqState tracks an active per-itemid sequence: the head is currently
// exposed to workers (runnable or in-flight); tail holds the rest in
// arrival order.
type seqState struct {
	head *model.Task
	tail *list.List // remaining *model.Task, FIFO
}

// New constructs an empty Queue.
func New() *Queue {
	q := &Queue{
		pending:  list.New(),
		finished: list.New(),
		seqByID:  make(map[uint64]*seqState),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// PushPending enqueues a new task (spec.md §4.1 push_pending).
//
// For TaskValueSeq: if a sequence is already active for task.ItemID, the
// task is appended to that sequence's tail and NOT exposed to workers yet;
// otherwise a new sequence is created wrapping the task and the task itself
// becomes immediately runnable.
func (q *Queue) PushPending(t *model.Task) {
	t.NewDone()
	q.mu.Lock()
	defer q.mu.Unlock()

	if t.Type == model.TaskValueSeq {
		if seq, ok := q.seqByID[t.ItemID]; ok {
			seq.tail.PushBack(t)
			return
		}
		q.seqByID[t.ItemID] = &seqState{head: t, tail: list.New()}
		q.pending.PushBack(t)
		q.cond.Signal()
		return
	}

	q.pending.PushBack(t)
	q.cond.Signal()
}

// PopNew returns one runnable task, transferring ownership to the caller.
// It blocks (via cond.Wait) while the queue is empty and not stopping.
// Returns nil if the queue is stopping and empty.
func (q *Queue) PopNew() *model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.pending.Len() == 0 && !q.stopping {
		q.cond.Wait()
	}
	if q.pending.Len() == 0 {
		return nil
	}
	el := q.pending.Front()
	q.pending.Remove(el)
	return el.Value.(*model.Task)
}

// PushFinished is called by a worker after executing t. For sequence
// members it advances the owning sequence: pops the head, re-exposes the
// next head as runnable if the tail is non-empty, else retires the
// sequence entry entirely (spec.md §4.1).
func (q *Queue) PushFinished(t *model.Task) {
	t.MarkDone()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.finished.PushBack(t)

	if t.Type == model.TaskValueSeq {
		seq, ok := q.seqByID[t.ItemID]
		if ok && seq.head == t {
			if seq.tail.Len() > 0 {
				el := seq.tail.Front()
				seq.tail.Remove(el)
				next := el.Value.(*model.Task)
				seq.head = next
				q.pending.PushBack(next)
			} else {
				delete(q.seqByID, t.ItemID)
			}
		}
	}

	q.cond.Signal()
}

// PopFinished drains one completed task, or returns nil if none are ready.
// Dispatcher-side, non-blocking.
func (q *Queue) PopFinished() *model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.finished.Len() == 0 {
		return nil
	}
	el := q.finished.Front()
	q.finished.Remove(el)
	return el.Value.(*model.Task)
}

// Wait blocks the caller until new work is pushed or the queue is told to
// stop. It surfaces a failure only on an irrecoverable signalling fault
// (spec.md §4.1); in this Go port that never actually occurs, but the
// signature is kept to match the documented contract.
func (q *Queue) Wait() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.pending.Len() == 0 && !q.stopping {
		q.cond.Wait()
	}
	return q.waitErr
}

// RegisterWorker records a newly started worker.
func (q *Queue) RegisterWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workers++
}

// DeregisterWorker records a worker exiting. The last worker to deregister
// wakes any remaining waiter so it can observe shutdown completion.
func (q *Queue) DeregisterWorker() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workers--
	if q.workers <= 0 {
		q.cond.Broadcast()
	}
}

// Shutdown marks the queue as stopping and wakes every worker blocked in
// PopNew/Wait so they can observe it and exit.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopping = true
	q.cond.Broadcast()
}

// Stopping reports whether Shutdown has been called.
func (q *Queue) Stopping() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopping
}

// Len reports the current number of runnable pending tasks (diagnostics).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// ErrQueueClosed is returned by callers that choose to treat a nil PopNew
// result during shutdown as an error; the queue itself never returns it.
var ErrQueueClosed = errors.New("queue: closed")
