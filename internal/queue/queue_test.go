package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pollcore/internal/model"
)

// TestSequenceOrdering implements scenario S3: ValueSeq(itemid=9, ts=1..3)
// pushed with 4 workers available must retire in ts order regardless of
// scheduling.
func TestSequenceOrdering(t *testing.T) {
	q := New()

	mk := func(ts int) *model.Task {
		return &model.Task{Type: model.TaskValueSeq, ItemID: 9, Timestamp: time.Unix(int64(ts), 0)}
	}
	tasks := []*model.Task{mk(1), mk(2), mk(3)}
	for _, tsk := range tasks {
		q.PushPending(tsk)
	}

	// Only the head should be runnable initially.
	require.Equal(t, 1, q.Len())

	var wg sync.WaitGroup
	var mu sync.Mutex
	var order []int64

	worker := func() {
		defer wg.Done()
		for {
			tsk := q.PopNew()
			if tsk == nil {
				return
			}
			mu.Lock()
			order = append(order, tsk.Timestamp.Unix())
			mu.Unlock()
			tsk.Result = model.Result{State: model.StateNormal}
			q.PushFinished(tsk)
		}
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go worker()
	}

	// Wait for all three to finish, then shut the queue down to release
	// the idle workers blocked in PopNew.
	for i := 0; i < 3; i++ {
		f := q.PopFinished()
		for f == nil {
			time.Sleep(time.Millisecond)
			f = q.PopFinished()
		}
		assert.Equal(t, int64(i+1), f.Timestamp.Unix())
	}
	q.Shutdown()
	wg.Wait()

	require.Len(t, order, 3)
	assert.Equal(t, []int64{1, 2, 3}, order)
}

// TestDependentSharesPrimary implements scenario S4: a Dependent task must
// observe the primary's finalized result without recomputing it.
func TestDependentSharesPrimary(t *testing.T) {
	primary := &model.Task{Type: model.TaskValue, ItemID: 10}
	primary.NewDone()

	computations := 0
	var mu sync.Mutex

	computePrimary := func() {
		mu.Lock()
		computations++
		mu.Unlock()
		primary.Result = model.Result{State: model.StateNormal, Value: "42"}
		primary.MarkDone()
	}

	dependent := &model.Task{Type: model.TaskDependent, ItemID: 11, Primary: primary}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		computePrimary()
	}()
	go func() {
		defer wg.Done()
		dependent.Primary.WaitDone()
		dependent.Result = dependent.Primary.Result
	}()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, computations)
	assert.Equal(t, primary.Result, dependent.Result)
}

func TestPushPendingNonSequenceIsImmediatelyRunnable(t *testing.T) {
	q := New()
	q.PushPending(&model.Task{Type: model.TaskValue, ItemID: 1})
	require.Equal(t, 1, q.Len())
	tsk := q.PopNew()
	require.NotNil(t, tsk)
	assert.Equal(t, uint64(1), tsk.ItemID)
}

func TestShutdownWakesBlockedPopNew(t *testing.T) {
	q := New()
	done := make(chan struct{})
	go func() {
		tsk := q.PopNew()
		assert.Nil(t, tsk)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PopNew did not wake up after Shutdown")
	}
}
