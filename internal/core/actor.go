package core

import (
	"context"
	"errors"
)

// ErrActionLimit is returned by Actor.Step once the actor has executed its
// MaxActions.
var ErrActionLimit = errors.New("action limit reached")

// NullReporter discards all events. Warmup actions report to it so they
// reach the service without counting towards the report.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}

// Limits bounds the actions one actor executes. Warmup actions count
// towards MaxActions.
type Limits struct {
	MaxActions    int // 0 = unlimited
	WarmupActions int
}

// Actor is one replay worker. Each Step executes the next action of the
// actor's walk through the scenario. An Actor is not safe for concurrent use.
type Actor struct {
	id       int
	workflow Workflow
	reporter Reporter
	coord    Coordinator
	limits   Limits
	executed int
}

func NewActor(id int, workflow Workflow, reporter Reporter, coord Coordinator, limits Limits) *Actor {
	return &Actor{
		id:       id,
		workflow: workflow,
		reporter: reporter,
		coord:    coord,
		limits:   limits,
	}
}

// ID returns the actor's identifier.
func (a *Actor) ID() int {
	return a.id
}

// Step executes one action. A failed action is the workflow's to report; Step
// only returns an error when the actor cannot go on.
func (a *Actor) Step(ctx context.Context) error {
	if a.limits.MaxActions > 0 && a.executed >= a.limits.MaxActions {
		return ErrActionLimit
	}
	rep := a.reporter
	if a.Warming() {
		rep = NullReporter
	}
	if err := a.workflow.Run(ctx, a.id, a.coord, rep); err != nil {
		return err
	}
	a.executed++
	return nil
}

// Run steps until ctx ends, stop is closed or the action limit is reached,
// all of which return nil. Any other error from the workflow ends the actor.
func (a *Actor) Run(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		err := a.Step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrActionLimit), ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
}

// Executed returns how many actions completed, warmup included.
func (a *Actor) Executed() int {
	return a.executed
}

// Warming reports whether the next action is a warmup action.
func (a *Actor) Warming() bool {
	return a.executed < a.limits.WarmupActions
}
