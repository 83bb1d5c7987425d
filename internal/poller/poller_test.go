package poller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pollcore/internal/avail"
	"firestige.xyz/pollcore/internal/cachecfg"
	"firestige.xyz/pollcore/internal/checks"
	"firestige.xyz/pollcore/internal/config"
	"firestige.xyz/pollcore/internal/model"
	"firestige.xyz/pollcore/internal/preproc"
)

// fakeAdapter lets each test script exactly how Dispatch behaves: either a
// synchronous errcode (no async completion at all) or an async completion
// delivered after an optional delay.
type fakeAdapter struct {
	dispatchErrCode model.ErrCode // returned synchronously; model.SUCCEED means "launched"
	completion      checks.Completion
	delay           time.Duration
	dispatched      int
	cleaned         int
}

func (f *fakeAdapter) Dispatch(ctx context.Context, args checks.DispatchArgs, onComplete func(checks.Completion)) model.ErrCode {
	f.dispatched++
	if f.dispatchErrCode != model.SUCCEED {
		return f.dispatchErrCode
	}
	c := f.completion
	c.Item = args.Item
	if f.delay == 0 {
		onComplete(c)
	} else {
		go func() {
			time.Sleep(f.delay)
			onComplete(c)
		}()
	}
	return model.SUCCEED
}

func (f *fakeAdapter) Clean(checks.Completion) { f.cleaned++ }

func testTunables() avail.Tunables {
	return avail.Tunables{UnavailableDelay: 5 * time.Minute, UnreachableDelay: 15 * time.Second, UnreachablePeriod: 45 * time.Second}
}

func testPollerConfig() config.PollerConfig {
	return config.PollerConfig{
		Timeout:                      time.Second,
		MaxConcurrentChecksPerPoller: 10,
	}
}

func drainCompletions(p *Poller) {
	for {
		select {
		case c := <-p.completions:
			p.processResult(time.Now(), c)
		default:
			return
		}
	}
}

// TestCleanAgentPoll covers scenario S1: a single item dispatched, completed
// successfully, and forwarded to the preprocessor as a normal value.
func TestCleanAgentPoll(t *testing.T) {
	cache := cachecfg.NewMemCache()
	item := model.Item{ItemID: 1, InterfaceID: 1, Type: model.PollerAgent, ValueType: model.ValueString, Host: "h1"}
	iface := model.Interface{InterfaceID: 1, Available: model.TriTrue}
	cache.AddItem(item, iface)

	pp := preproc.New(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pp.Start(ctx)
	defer pp.Stop()

	adapter := &fakeAdapter{dispatchErrCode: model.SUCCEED, completion: checks.Completion{ErrCode: model.SUCCEED, Value: "42"}}
	tracker := avail.NewTracker(testTunables())

	p := New(model.PollerAgent, testPollerConfig(), Deps{Cache: cache, Adapter: adapter, Preproc: pp, Avail: tracker})

	p.dispatchCycle(ctx)
	drainCompletions(p)

	assert.Equal(t, 0, p.processing)
	assert.Equal(t, 1, p.processed)
	assert.Equal(t, 1, adapter.dispatched)
	assert.Equal(t, 1, adapter.cleaned)

	require.Eventually(t, func() bool {
		tasks := pp.Flush()
		for _, task := range tasks {
			if task.ItemID == 1 && task.Result.State == model.StateNormal {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

// TestConfigErrorIsolation covers scenario S6: a per-item CONFIG_ERROR never
// touches interface availability and never goes async.
func TestConfigErrorIsolation(t *testing.T) {
	cache := cachecfg.NewMemCache()
	item := model.Item{ItemID: 2, InterfaceID: 2, Type: model.PollerAgent, ValueType: model.ValueString}
	iface := model.Interface{InterfaceID: 2, Available: model.TriTrue}
	cache.AddItem(item, iface)

	pp := preproc.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pp.Start(ctx)
	defer pp.Stop()

	adapter := &fakeAdapter{dispatchErrCode: model.CONFIGERROR}
	tracker := avail.NewTracker(testTunables())

	p := New(model.PollerAgent, testPollerConfig(), Deps{Cache: cache, Adapter: adapter, Preproc: pp, Avail: tracker})

	p.dispatchCycle(ctx)

	assert.Equal(t, 0, p.processing, "a synchronous dispatch failure never increments processing")
	assert.Equal(t, 1, adapter.dispatched)

	got, ok := cache.InterfaceByID(2)
	require.True(t, ok)
	assert.Equal(t, model.TriTrue, got.Available, "config errors must not deactivate the interface")

	require.Eventually(t, func() bool {
		tasks := pp.Flush()
		for _, task := range tasks {
			if task.ItemID == 2 && task.Result.State == model.StateNotSupported {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

// TestShutdownDrain covers scenario S5: a cancelled context drains in-flight
// checks before Run returns.
func TestShutdownDrain(t *testing.T) {
	cache := cachecfg.NewMemCache()
	item := model.Item{ItemID: 3, InterfaceID: 3, Type: model.PollerAgent, ValueType: model.ValueString}
	iface := model.Interface{InterfaceID: 3, Available: model.TriTrue}
	cache.AddItem(item, iface)

	pp := preproc.New(1)
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	pp.Start(bgCtx)
	defer pp.Stop()

	adapter := &fakeAdapter{
		dispatchErrCode: model.SUCCEED,
		completion:      checks.Completion{ErrCode: model.SUCCEED, Value: "1"},
		delay:           50 * time.Millisecond,
	}
	tracker := avail.NewTracker(testTunables())

	cfg := testPollerConfig()
	cfg.Timeout = 200 * time.Millisecond
	deps := Deps{Cache: cache, Adapter: adapter, Preproc: pp, Avail: tracker, DispatchTick: 10 * time.Millisecond}
	p := New(model.PollerAgent, cfg, deps)

	runCtx, runCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool { return adapter.dispatched > 0 }, time.Second, 5*time.Millisecond)
	runCancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Equal(t, 0, p.processing, "drain must wait for the in-flight check to complete")
}

// TestDispatchCapNeverExceeded is a property test for the
// max_concurrent_checks_per_poller budget (spec.md §9 Open Question 2):
// a single dispatch cycle never launches more checks than the remaining
// budget allows.
func TestDispatchCapNeverExceeded(t *testing.T) {
	cache := cachecfg.NewMemCache()
	for i := uint64(1); i <= 5; i++ {
		item := model.Item{ItemID: i, InterfaceID: i, Type: model.PollerAgent, ValueType: model.ValueString}
		iface := model.Interface{InterfaceID: i, Available: model.TriTrue}
		cache.AddItem(item, iface)
	}

	pp := preproc.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pp.Start(ctx)
	defer pp.Stop()

	// Never completes, so every dispatched check stays "in flight" for the
	// duration of the test, making the cap directly observable.
	adapter := &fakeAdapter{dispatchErrCode: model.SUCCEED, delay: time.Hour}
	tracker := avail.NewTracker(testTunables())

	cfg := testPollerConfig()
	cfg.MaxConcurrentChecksPerPoller = 2
	p := New(model.PollerAgent, cfg, Deps{Cache: cache, Adapter: adapter, Preproc: pp, Avail: tracker})

	p.dispatchCycle(ctx)
	assert.LessOrEqual(t, p.processing, 2)
	assert.Equal(t, 2, p.processing)

	// A second cycle must respect the remaining budget (0 here), so it
	// must not dispatch any further items.
	p.dispatchCycle(ctx)
	assert.Equal(t, 2, adapter.dispatched, "no further items may dispatch once the budget is exhausted")
}
