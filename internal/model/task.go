package model

import "time"

// TaskType tags the payload shape carried by a Task (spec.md §3).
type TaskType int

const (
	TaskTest TaskType = iota
	TaskValue
	TaskValueSeq
	TaskDependent
	TaskSequence
)

func (t TaskType) String() string {
	switch t {
	case TaskTest:
		return "test"
	case TaskValue:
		return "value"
	case TaskValueSeq:
		return "value_seq"
	case TaskDependent:
		return "dependent"
	case TaskSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Cache is the opaque per-item throttling state a Value/ValueSeq task's
// step plan may read and mutate (e.g. "nodata" throttling, previous value
// for delta). It is a pointer so repeated dispatches of the same itemid
// share state across batches, matching spec.md §3 "optional cache pointer".
type Cache struct {
	mu   chan struct{} // 1-buffered mutex; zero value unusable, use NewCache
	data map[string]any
}

// NewCache constructs an empty, ready-to-use Cache.
func NewCache() *Cache {
	c := &Cache{mu: make(chan struct{}, 1), data: make(map[string]any)}
	c.mu <- struct{}{}
	return c
}

// Get reads a previously stored value for key.
func (c *Cache) Get(key string) (any, bool) {
	<-c.mu
	defer func() { c.mu <- struct{}{} }()
	v, ok := c.data[key]
	return v, ok
}

// Set stores a value for key, overwriting any previous one.
func (c *Cache) Set(key string, v any) {
	<-c.mu
	defer func() { c.mu <- struct{}{} }()
	c.data[key] = v
}

// Result holds a finished computation: either a typed value or an error
// state with message, never both (spec.md §7 propagation).
type Result struct {
	State PreprocState
	Value any
	Error string

	// Intermediate holds per-step diagnostic results, populated only for
	// TaskTest (spec.md §4.2 "Test: ... plus per-step intermediate
	// results for diagnostics").
	Intermediate []StepResult
}

// StepResult is one step's contribution to a Test task's diagnostics.
type StepResult struct {
	Step  string
	Value any
	Error string
}

// Task is the tagged variant dispatched by the preprocessor (spec.md §3).
// Exactly one of the payload fields below is meaningful, selected by Type.
type Task struct {
	Type   TaskType
	ItemID uint64

	// Value/ValueSeq/Test payload.
	Plan      []StepSpec
	Input     any
	Timestamp time.Time
	ValueType ValueType
	Cache     *Cache

	// Dependent payload: reference to the primary value-task whose result
	// is shared by all dependents computed from the same raw sample.
	Primary *Task

	// Sequence payload: ordered queue of per-item tasks that must retire
	// in push order (spec.md §4.1 Ordering).
	Sequence []*Task

	// Result is populated by the worker once execution completes and read
	// by the dispatcher via pop_finished.
	Result Result

	// done is closed by the worker when Result is ready; Dependent tasks
	// and external waiters on the primary's value use it to block until
	// the primary's computation is finalized (spec.md testable property 5).
	done chan struct{}
}

// NewDone lazily initializes the task's completion channel. Safe to call
// more than once; only the first call has effect.
func (t *Task) NewDone() {
	if t.done == nil {
		t.done = make(chan struct{})
	}
}

// MarkDone closes the completion channel, if any, signalling that Result is
// final and safe for concurrent readers.
func (t *Task) MarkDone() {
	if t.done != nil {
		select {
		case <-t.done:
			// already closed
		default:
			close(t.done)
		}
	}
}

// WaitDone blocks until the task's Result is finalized. A task with no
// completion channel is considered already done (e.g. a freshly constructed
// task never pushed through the queue).
func (t *Task) WaitDone() {
	if t.done == nil {
		return
	}
	<-t.done
}
