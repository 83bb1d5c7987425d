// Package worker implements the preprocessor's execution pool (spec.md
// §4.2): a fixed number of goroutines, each looping pop_new -> execute ->
// push_finished against a shared queue.Queue, dispatching by task shape.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/pollcore/internal/log"
	"firestige.xyz/pollcore/internal/metrics"
	"firestige.xyz/pollcore/internal/model"
	"firestige.xyz/pollcore/internal/preproc/step"
	"firestige.xyz/pollcore/internal/queue"
)

// Worker executes tasks popped from a queue.Queue until the queue starts
// stopping and no runnable task remains. It owns no state of its own
// beyond an id used for metrics and log correlation.
type Worker struct {
	id int
	q  *queue.Queue
}

// New constructs a Worker bound to q.
func New(id int, q *queue.Queue) *Worker {
	return &Worker{id: id, q: q}
}

// Run is the worker's goroutine body: register, loop pop/execute/push,
// deregister on exit. It returns once the queue is stopping and empty.
func (w *Worker) Run(ctx context.Context) {
	label := strconv.Itoa(w.id)
	w.q.RegisterWorker()
	defer w.q.DeregisterWorker()

	for {
		t := w.q.PopNew()
		if t == nil {
			return
		}

		metrics.PreprocWorkerBusy.WithLabelValues(label).Set(1)
		w.execute(ctx, t)
		metrics.PreprocWorkerBusy.WithLabelValues(label).Set(0)

		w.q.PushFinished(t)
	}
}

// execute dispatches t by its TaskType and fills in t.Result. It never
// panics: a step error is recorded as a failed Result rather than
// propagated, since one bad task must not take down the worker.
func (w *Worker) execute(ctx context.Context, t *model.Task) {
	start := time.Now()
	defer func() {
		metrics.PreprocStepDuration.WithLabelValues(t.Type.String()).Observe(time.Since(start).Seconds())
	}()

	switch t.Type {
	case model.TaskTest:
		w.runTest(t)
	case model.TaskValue, model.TaskValueSeq:
		w.runValue(t)
	case model.TaskDependent:
		w.runDependent(t)
	case model.TaskSequence:
		w.runSequence(ctx, t)
	default:
		t.Result = model.Result{State: model.StateNotSupported, Error: fmt.Sprintf("worker: unknown task type %v", t.Type)}
	}

	outcome := "ok"
	if t.Result.State != model.StateNormal {
		outcome = "error"
	}
	metrics.PreprocTasksTotal.WithLabelValues(t.Type.String(), outcome).Inc()
}

func stepContext(t *model.Task) *step.Context {
	c := &step.Context{ItemID: t.ItemID}
	if t.Cache != nil {
		c.Cache = t.Cache
	}
	return c
}

// runValue executes a Value or ValueSeq task's plan and stores the final
// value (no per-step diagnostics kept, unlike Test).
func (w *Worker) runValue(t *model.Task) {
	out, _, err := step.Run(stepContext(t), t.Plan, t.Input)
	t.Result = resultFromPlan(out, err)
}

// runTest executes a Test task's plan and keeps full per-step diagnostics
// regardless of outcome (spec.md §4.2 "Test: ... plus per-step
// intermediate results for diagnostics").
func (w *Worker) runTest(t *model.Task) {
	out, diag, err := step.Run(stepContext(t), t.Plan, t.Input)
	res := resultFromPlan(out, err)
	res.Intermediate = diag
	t.Result = res
}

// runDependent waits for its Primary task to finish, then copies the
// primary's result verbatim rather than recomputing: a dependent item
// shares its primary's preprocessing output (spec.md §4.2, testable
// property 5, "compute-once, observe-many").
func (w *Worker) runDependent(t *model.Task) {
	if t.Primary == nil {
		t.Result = model.Result{State: model.StateNotSupported, Error: "worker: dependent task has no primary"}
		return
	}
	t.Primary.WaitDone()
	t.Result = t.Primary.Result
}

// runSequence executes every member of t.Sequence in order, sharing a
// single worker goroutine so arrival order is preserved even though the
// owning queue already serializes ValueSeq members one at a time; this
// shape exists for a caller-constructed batch that must run as one atomic
// unit of work (spec.md §3 TaskSequence).
func (w *Worker) runSequence(ctx context.Context, t *model.Task) {
	for _, sub := range t.Sequence {
		w.execute(ctx, sub)
		sub.MarkDone()
	}
	if n := len(t.Sequence); n > 0 {
		t.Result = t.Sequence[n-1].Result
	} else {
		t.Result = model.Result{State: model.StateNormal}
	}
}

func resultFromPlan(out step.Value, err error) model.Result {
	if err != nil {
		if isThrottled(err) {
			return model.Result{State: model.StateNormal, Value: out}
		}
		return model.Result{State: model.StateNotSupported, Error: err.Error()}
	}
	return model.Result{State: model.StateNormal, Value: out}
}

func isThrottled(err error) bool {
	for e := err; e != nil; e = unwrap(e) {
		if e == step.ErrThrottled {
			return true
		}
	}
	return false
}

func unwrap(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

// Pool owns a fixed set of Worker goroutines bound to one queue.Queue,
// started and joined via an errgroup.Group; Stop returns once every worker
// goroutine has returned. Worker goroutines always return nil, and a panic
// inside one is not recovered.
type Pool struct {
	q       *queue.Queue
	workers []*Worker
	cancel  context.CancelFunc
	group   *errgroup.Group
	done    chan struct{}
}

// NewPool constructs n workers against q without starting them.
func NewPool(q *queue.Queue, n int) *Pool {
	ws := make([]*Worker, n)
	for i := range ws {
		ws[i] = New(i+1, q)
	}
	return &Pool{q: q, workers: ws}
}

// Start launches every worker's goroutine under a shared errgroup.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	p.group = group
	p.done = make(chan struct{})

	for _, w := range p.workers {
		w := w
		group.Go(func() error {
			w.Run(gctx)
			return nil
		})
	}

	go func() {
		defer close(p.done)
		_ = group.Wait()
	}()

	log.GetLogger().Infof("preprocessor worker pool started with %d workers", len(p.workers))
}

// Stop signals the queue to drain and blocks until every worker has
// exited (spec.md §4.2 graceful shutdown: workers finish their current
// task then observe stopping+empty and return).
func (p *Pool) Stop() {
	p.q.Shutdown()
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		<-p.done
	}
	log.GetLogger().Infof("preprocessor worker pool stopped")
}
