package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"settleload/internal/collector"
	"settleload/internal/config"
	"settleload/internal/core"
)

// pacedWorkflow reports one successful transfer per Run after delay and
// remembers every actor that ran.
type pacedWorkflow struct {
	delay  time.Duration
	runs   atomic.Int32
	actors sync.Map
}

func (w *pacedWorkflow) Run(ctx context.Context, actorID int, _ core.Coordinator, rep core.Reporter) error {
	w.actors.Store(actorID, true)
	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.runs.Add(1)
	rep.Report(core.Event{ActorID: actorID, Action: "transfer", Class: "ok", Success: true, Duration: w.delay})
	return nil
}

func (w *pacedWorkflow) actorCount() int {
	n := 0
	w.actors.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func newTestCoordinator(rep core.Reporter) *Coordinator {
	return NewCoordinator(rep, WithLogger(zerolog.Nop()))
}

func TestSpawnWithLimits_EveryActorGetsItsOwnID(t *testing.T) {
	c := collector.NewCollector()
	coord := newTestCoordinator(c)
	wf := &pacedWorkflow{}

	coord.SpawnWithLimits(context.Background(), 10, wf, core.Limits{MaxActions: 1})
	coord.Wait()
	c.Close()

	assert.Equal(t, 10, wf.actorCount())
	for id := 1; id <= 10; id++ {
		_, ok := wf.actors.Load(id)
		assert.True(t, ok, "actor %d never ran", id)
	}
	assert.Len(t, c.Events(), 10)
}

func TestSpawn_ActorsRunConcurrently(t *testing.T) {
	c := collector.NewCollector()
	coord := newTestCoordinator(c)
	wf := &pacedWorkflow{delay: 50 * time.Millisecond}

	start := time.Now()
	coord.SpawnWithLimits(context.Background(), 5, wf, core.Limits{MaxActions: 1})
	coord.Wait()
	c.Close()

	assert.Less(t, time.Since(start), 200*time.Millisecond, "5 sequential actions would take 250ms")
	assert.EqualValues(t, 5, wf.runs.Load())
}

func TestSpawn_CancellationStopsActors(t *testing.T) {
	c := collector.NewCollector()
	coord := newTestCoordinator(c)
	wf := &pacedWorkflow{delay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	coord.Spawn(ctx, 3, wf)
	cancel()

	done := make(chan struct{})
	go func() {
		coord.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("actors kept running after cancellation")
	}
	c.Close()

	assert.Empty(t, c.Events(), "an action cut short by shutdown is not reported")
}

// panickyWorkflow panics on its first Run only.
type panickyWorkflow struct {
	fired atomic.Bool
}

func (p *panickyWorkflow) Run(ctx context.Context, actorID int, _ core.Coordinator, rep core.Reporter) error {
	if p.fired.CompareAndSwap(false, true) {
		panic("cursor out of range")
	}
	rep.Report(core.Event{ActorID: actorID, Action: "transfer", Success: true})
	return nil
}

func TestSpawn_RecoversPanic(t *testing.T) {
	c := collector.NewCollector()
	coord := newTestCoordinator(c)

	coord.SpawnWithLimits(context.Background(), 2, &panickyWorkflow{}, core.Limits{MaxActions: 3})
	coord.Wait()
	c.Close()

	var panics, transfers int
	for _, e := range c.Events() {
		switch e.Action {
		case "panic":
			panics++
			assert.False(t, e.Success)
			assert.Equal(t, "500", e.Code)
			assert.Contains(t, e.Error, "cursor out of range")
		case "transfer":
			transfers++
		}
	}
	assert.Equal(t, 1, panics)
	assert.Equal(t, 3, transfers, "the other actor runs to its limit")
}

func TestRunWithProfile_LevelThenLower(t *testing.T) {
	c := collector.NewCollector()
	coord := newTestCoordinator(c)
	wf := &pacedWorkflow{delay: 10 * time.Millisecond}

	profile := &config.LoadProfile{Phases: []config.Phase{
		{Name: "peak", Duration: 250 * time.Millisecond, Actors: 5},
		{Name: "tail", Duration: 250 * time.Millisecond, Actors: 2},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(400 * time.Millisecond)
		assert.LessOrEqual(t, coord.ActiveActors(), 2, "tail phase keeps at most 2 actors")
	}()
	coord.RunWithProfile(ctx, profile, wf, nil, nil, core.Limits{})
	coord.Wait()
	c.Close()

	assert.Equal(t, 5, wf.actorCount())
	assert.Equal(t, 0, coord.ActiveActors())
	assert.NotEmpty(t, c.Events())
}

func TestRunWithProfile_RampDownStopsEveryone(t *testing.T) {
	c := collector.NewCollector()
	coord := newTestCoordinator(c)
	wf := &pacedWorkflow{delay: 10 * time.Millisecond}

	profile := &config.LoadProfile{Phases: []config.Phase{
		{Name: "close", Duration: 300 * time.Millisecond, StartActors: 8, EndActors: 0},
	}}

	coord.RunWithProfile(context.Background(), profile, wf, nil, nil, core.Limits{})
	coord.Wait()
	c.Close()

	assert.Equal(t, 0, coord.ActiveActors())
	assert.GreaterOrEqual(t, wf.actorCount(), 3)
}

func TestRunWithProfile_FollowsInjectedClock(t *testing.T) {
	c := collector.NewCollector()
	clock := core.NewFakeClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	coord := NewCoordinator(c, WithLogger(zerolog.Nop()), WithClock(clock))
	wf := &pacedWorkflow{delay: 5 * time.Millisecond}

	profile := &config.LoadProfile{Phases: []config.Phase{
		{Name: "business_day", Duration: 8 * time.Hour, Actors: 3},
	}}

	done := make(chan struct{})
	go func() {
		coord.RunWithProfile(context.Background(), profile, wf, nil, nil, core.Limits{})
		close(done)
	}()

	require.Eventually(t, func() bool { return coord.ActiveActors() == 3 }, time.Second, 10*time.Millisecond)
	clock.Advance(8 * time.Hour)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("profile did not end when the clock passed its last phase")
	}
	coord.Wait()
	c.Close()
	assert.Equal(t, 0, coord.ActiveActors())
}

func TestRunWithProfile_ContextCancellation(t *testing.T) {
	c := collector.NewCollector()
	coord := newTestCoordinator(c)
	wf := &pacedWorkflow{delay: 50 * time.Millisecond}

	profile := &config.LoadProfile{Phases: []config.Phase{
		{Name: "long", Duration: 10 * time.Second, Actors: 5},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.RunWithProfile(ctx, profile, wf, nil, nil, core.Limits{})
		close(done)
	}()

	require.Eventually(t, func() bool { return coord.ActiveActors() == 5 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("RunWithProfile did not stop after cancellation")
	}
	coord.Wait()
	c.Close()
	assert.Equal(t, 0, coord.ActiveActors())
}

func TestStopActors_NothingToStop(t *testing.T) {
	coord := newTestCoordinator(core.NullReporter)
	assert.NotPanics(t, func() { coord.stopActors(5) })
	assert.Equal(t, 0, coord.ActiveActors())
}
