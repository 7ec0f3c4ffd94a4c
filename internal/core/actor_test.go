package core

import (
	"context"
	"errors"
	"testing"
)

// scriptedWorkflow plays back one outcome class per Run, wrapping around.
type scriptedWorkflow struct {
	classes []string
	runs    int
	fail    error // returned instead of reporting once runs reaches failAt
	failAt  int
}

func (w *scriptedWorkflow) Run(ctx context.Context, actorID int, _ Coordinator, rep Reporter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.fail != nil && w.runs == w.failAt {
		return w.fail
	}
	class := w.classes[w.runs%len(w.classes)]
	w.runs++
	rep.Report(Event{ActorID: actorID, Action: "transfer", Class: class, Success: class == "ok"})
	return nil
}

type eventLog struct {
	events []Event
}

func (l *eventLog) Report(e Event) {
	l.events = append(l.events, e)
}

func TestActor_StopsAtActionLimit(t *testing.T) {
	wf := &scriptedWorkflow{classes: []string{"ok"}}
	log := &eventLog{}
	a := NewActor(4, wf, log, nil, Limits{MaxActions: 3})

	if err := a.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() = %v, want nil at the action limit", err)
	}
	if a.Executed() != 3 || wf.runs != 3 || len(log.events) != 3 {
		t.Errorf("executed=%d runs=%d events=%d, want 3 each", a.Executed(), wf.runs, len(log.events))
	}
	if err := a.Step(context.Background()); !errors.Is(err, ErrActionLimit) {
		t.Errorf("Step() after limit = %v, want ErrActionLimit", err)
	}
	for _, e := range log.events {
		if e.ActorID != 4 {
			t.Errorf("event from actor %d, want 4", e.ActorID)
		}
	}
}

func TestActor_WarmupReachesServiceUnreported(t *testing.T) {
	wf := &scriptedWorkflow{classes: []string{"ok"}}
	log := &eventLog{}
	a := NewActor(1, wf, log, nil, Limits{MaxActions: 5, WarmupActions: 2})

	if !a.Warming() {
		t.Error("expected a fresh actor to be warming")
	}
	if err := a.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if wf.runs != 5 {
		t.Errorf("expected 5 actions executed, got %d", wf.runs)
	}
	if len(log.events) != 3 {
		t.Errorf("expected 3 reported actions after 2 warmup, got %d", len(log.events))
	}
	if a.Warming() {
		t.Error("expected warmup to be over")
	}
}

func TestActor_FailedActionsKeepRunning(t *testing.T) {
	wf := &scriptedWorkflow{classes: []string{"dependency_unavailable", "transport_error", "ok"}}
	log := &eventLog{}
	a := NewActor(1, wf, log, nil, Limits{MaxActions: 6})

	if err := a.Run(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(log.events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(log.events))
	}
	var unavailable int
	for _, e := range log.events {
		if e.Class == "dependency_unavailable" {
			unavailable++
		}
	}
	if unavailable != 2 {
		t.Errorf("expected 2 dependency_unavailable samples, got %d", unavailable)
	}
}

func TestActor_WorkflowErrorEndsActor(t *testing.T) {
	boom := errors.New("limiter closed")
	wf := &scriptedWorkflow{classes: []string{"ok"}, fail: boom, failAt: 2}
	a := NewActor(1, wf, &eventLog{}, nil, Limits{})

	if err := a.Run(context.Background(), nil); !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want %v", err, boom)
	}
	if a.Executed() != 2 {
		t.Errorf("expected 2 executed actions, got %d", a.Executed())
	}
}

func TestActor_CancelledActionNotCounted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewActor(1, &scriptedWorkflow{classes: []string{"ok"}}, &eventLog{}, nil, Limits{WarmupActions: 1})

	if err := a.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Step() = %v, want context.Canceled", err)
	}
	if a.Executed() != 0 || !a.Warming() {
		t.Errorf("cancelled action must not count: executed=%d warming=%v", a.Executed(), a.Warming())
	}
	if err := a.Run(ctx, nil); err != nil {
		t.Errorf("Run() on cancelled ctx = %v, want nil", err)
	}
}

func TestActor_StopChannel(t *testing.T) {
	stop := make(chan struct{})
	close(stop)
	wf := &scriptedWorkflow{classes: []string{"ok"}}
	a := NewActor(1, wf, &eventLog{}, nil, Limits{})

	if err := a.Run(context.Background(), stop); err != nil {
		t.Fatal(err)
	}
	if wf.runs != 0 {
		t.Errorf("expected no actions after stop, got %d", wf.runs)
	}
}

func TestNullReporter(t *testing.T) {
	NullReporter.Report(Event{Action: "transfer"})
}
