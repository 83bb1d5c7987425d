// Package preproc is the facade the poller reactor talks to: it wires
// internal/queue and internal/worker behind the two operations spec.md §6
// names as consumed by the rest of the monitoring agent,
// preprocess_item_value and preprocessor_flush, plus the dependent-task and
// sequence grouping rules from spec.md §3/§4.1.
package preproc

import (
	"context"
	"time"

	"firestige.xyz/pollcore/internal/metrics"
	"firestige.xyz/pollcore/internal/model"
	"firestige.xyz/pollcore/internal/queue"
	"firestige.xyz/pollcore/internal/worker"
)

// Preprocessor owns the task queue and worker pool for one process
// (spec.md §4.2: "one preprocessor instance per process, workers fixed at
// startup").
type Preprocessor struct {
	q    *queue.Queue
	pool *worker.Pool
}

// New constructs a Preprocessor with workers goroutines, not yet started.
func New(workers int) *Preprocessor {
	q := queue.New()
	return &Preprocessor{q: q, pool: worker.NewPool(q, workers)}
}

// Start launches the worker pool.
func (p *Preprocessor) Start(ctx context.Context) {
	p.pool.Start(ctx)
}

// Stop drains the queue and waits for every worker to exit.
func (p *Preprocessor) Stop() {
	p.pool.Stop()
}

// ValueRequest describes one raw sample submitted for preprocessing.
type ValueRequest struct {
	ItemID    uint64
	Plan      []model.StepSpec
	Input     any
	Timestamp time.Time
	ValueType model.ValueType
	Cache     *model.Cache

	// Sequential marks the item as requiring ValueSeq ordering: samples
	// for the same itemid retire in the order they were submitted
	// (spec.md §4.1).
	Sequential bool
}

// PreprocessItemValue implements preprocess_item_value (spec.md §6): it
// enqueues req as a runnable task and returns immediately without waiting
// for the result. The computed value is later retrieved via Flush.
func (p *Preprocessor) PreprocessItemValue(req ValueRequest) *model.Task {
	t := &model.Task{
		Type:      model.TaskValue,
		ItemID:    req.ItemID,
		Plan:      req.Plan,
		Input:     req.Input,
		Timestamp: req.Timestamp,
		ValueType: req.ValueType,
		Cache:     req.Cache,
	}
	if req.Sequential {
		t.Type = model.TaskValueSeq
	}
	p.q.PushPending(t)
	metrics.PreprocQueueDepth.Set(float64(p.q.Len()))
	return t
}

// PreprocessDependent implements the dependent-item half of
// preprocess_item_value: rather than recomputing from the raw sample, it
// shares primary's eventual Result (spec.md §4.2, testable property 5).
// primary must already have been submitted via PreprocessItemValue (or
// PreprocessTest) in the same batch.
func (p *Preprocessor) PreprocessDependent(itemID uint64, primary *model.Task) *model.Task {
	t := &model.Task{
		Type:    model.TaskDependent,
		ItemID:  itemID,
		Primary: primary,
	}
	p.q.PushPending(t)
	return t
}

// PreprocessTest implements the diagnostic "test an item's preprocessing
// plan without affecting history" operation (spec.md §4.2 TaskTest): same
// queueing as a value task, but the worker retains per-step diagnostics.
func (p *Preprocessor) PreprocessTest(req ValueRequest) *model.Task {
	t := &model.Task{
		Type:      model.TaskTest,
		ItemID:    req.ItemID,
		Plan:      req.Plan,
		Input:     req.Input,
		Timestamp: req.Timestamp,
		ValueType: req.ValueType,
		Cache:     req.Cache,
	}
	p.q.PushPending(t)
	return t
}

// PreprocessFailedValue records a sample that never reached the step plan
// (e.g. a check that failed to dispatch, or returned a non-success errcode)
// directly as a finished NOTSUPPORTED task, bypassing the worker pool
// entirely since there is nothing left to compute (spec.md §4.3 "forward as
// NOTSUPPORTED with the error message").
func (p *Preprocessor) PreprocessFailedValue(itemID uint64, valueType model.ValueType, errMsg string) *model.Task {
	t := &model.Task{
		Type:      model.TaskValue,
		ItemID:    itemID,
		ValueType: valueType,
		Timestamp: time.Now(),
		Result:    model.Result{State: model.StateNotSupported, Error: errMsg},
	}
	t.NewDone()
	t.MarkDone()
	p.q.PushFinished(t)
	return t
}

// Flush implements preprocessor_flush (spec.md §6): it drains every
// currently-finished task and returns them to the caller for delivery back
// to history storage. It never blocks.
func (p *Preprocessor) Flush() []*model.Task {
	var out []*model.Task
	for {
		t := p.q.PopFinished()
		if t == nil {
			break
		}
		out = append(out, t)
	}
	metrics.PreprocQueueDepth.Set(float64(p.q.Len()))
	return out
}

// Wait blocks until at least one task is runnable or the preprocessor is
// stopping, for callers that want to batch Flush calls instead of polling.
func (p *Preprocessor) Wait() error {
	return p.q.Wait()
}
