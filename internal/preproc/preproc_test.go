package preproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pollcore/internal/model"
)

func TestPreprocessItemValueAndFlush(t *testing.T) {
	p := New(2)
	p.Start(context.Background())
	defer p.Stop()

	task := p.PreprocessItemValue(ValueRequest{
		ItemID: 1,
		Plan:   []model.StepSpec{{Name: "type-conversion", Params: map[string]string{"target": "float"}}},
		Input:  "42",
	})
	task.WaitDone()

	finished := p.Flush()
	require.Len(t, finished, 1)
	assert.Equal(t, task, finished[0])
	assert.Equal(t, 42.0, finished[0].Result.Value)
}

// TestSequentialOrderingThroughFacade implements scenario S3 at the facade
// level: values for the same itemid submitted out of worker-scheduling
// order still retire in submission order.
func TestSequentialOrderingThroughFacade(t *testing.T) {
	p := New(4)
	p.Start(context.Background())
	defer p.Stop()

	cache := model.NewCache()
	var tasks []*model.Task
	for i := 0; i < 3; i++ {
		tasks = append(tasks, p.PreprocessItemValue(ValueRequest{
			ItemID:     9,
			Plan:       []model.StepSpec{{Name: "type-conversion", Params: map[string]string{"target": "uint64"}}},
			Input:      "1",
			Cache:      cache,
			Sequential: true,
		}))
	}
	for _, tk := range tasks {
		tk.WaitDone()
	}

	finished := p.Flush()
	require.Len(t, finished, 3)
	assert.Same(t, tasks[0], finished[0])
	assert.Same(t, tasks[1], finished[1])
	assert.Same(t, tasks[2], finished[2])
}

func TestPreprocessDependentSharesPrimaryResult(t *testing.T) {
	p := New(2)
	p.Start(context.Background())
	defer p.Stop()

	primary := p.PreprocessItemValue(ValueRequest{
		ItemID: 1,
		Plan:   []model.StepSpec{{Name: "type-conversion", Params: map[string]string{"target": "float"}}},
		Input:  "10",
	})
	primary.WaitDone()

	dependent := p.PreprocessDependent(2, primary)
	dependent.WaitDone()

	finished := p.Flush()
	require.Len(t, finished, 2)
	assert.Equal(t, primary.Result, dependent.Result)
}
