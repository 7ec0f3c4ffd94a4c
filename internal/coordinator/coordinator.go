// Package coordinator runs replay actors, either a fixed pool or driven by a
// phased load profile.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"settleload/internal/config"
	"settleload/internal/core"
	"settleload/internal/progress"
	"settleload/internal/ratelimit"
)

const (
	// phaseTickInterval is how often we check for phase transitions
	// and adjust actor counts during load profile execution.
	phaseTickInterval = 100 * time.Millisecond
)

// Coordinator owns actor goroutines. Each goroutine drives one core.Actor.
type Coordinator struct {
	nextID      atomic.Int64
	wg          sync.WaitGroup
	reporter    core.Reporter
	activeCount atomic.Int32
	stopChans   []chan struct{}
	stopMu      sync.Mutex
	log         zerolog.Logger
	clock       core.Clock
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for actor and phase messages.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithClock sets the clock load profile phases are timed against.
func WithClock(clock core.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func NewCoordinator(reporter core.Reporter, opts ...Option) *Coordinator {
	c := &Coordinator{
		reporter: reporter,
		log:      log.Logger,
		clock:    core.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "coordinator").Logger()
	return c
}

// Spawn starts count actors that run workflow until ctx ends.
func (c *Coordinator) Spawn(ctx context.Context, count int, workflow core.Workflow) {
	c.SpawnWithLimits(ctx, count, workflow, core.Limits{})
}

// SpawnWithLimits starts count actors, each bounded by limits.
func (c *Coordinator) SpawnWithLimits(ctx context.Context, count int, workflow core.Workflow, limits core.Limits) {
	for i := 0; i < count; i++ {
		id := int(c.nextID.Add(1))
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.runActor(ctx, id, workflow, limits, nil)
		}()
	}
}

func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// ActiveActors returns the number of profile-driven actors still running.
func (c *Coordinator) ActiveActors() int {
	return int(c.activeCount.Load())
}

func (c *Coordinator) spawnWithStop(ctx context.Context, workflow core.Workflow, limits core.Limits) {
	stopCh := make(chan struct{})
	id := int(c.nextID.Add(1))
	c.activeCount.Add(1)
	c.wg.Add(1)

	c.stopMu.Lock()
	c.stopChans = append(c.stopChans, stopCh)
	c.stopMu.Unlock()

	go func() {
		defer func() {
			c.wg.Done()
			c.activeCount.Add(-1)
		}()
		c.runActor(ctx, id, workflow, limits, stopCh)
	}()
}

func (c *Coordinator) runActor(ctx context.Context, id int, workflow core.Workflow, limits core.Limits, stop <-chan struct{}) {
	defer c.recoverPanic(id)
	a := core.NewActor(id, workflow, c.reporter, c, limits)
	if err := a.Run(ctx, stop); err != nil {
		c.log.Debug().Err(err).Int("actor", id).Int("executed", a.Executed()).Msg("actor stopped")
	}
}

// recoverPanic recovers from panics in actor goroutines and reports them as failed events.
func (c *Coordinator) recoverPanic(actorID int) {
	if r := recover(); r != nil {
		c.log.Error().Int("actor", actorID).Interface("panic", r).Msg("actor panicked")
		c.reporter.Report(core.Event{
			ActorID:   actorID,
			Timestamp: time.Now(),
			Action:    "panic",
			Class:     "panic",
			Code:      "500",
			Success:   false,
			Error:     fmt.Sprintf("panic: %v", r),
		})
	}
}

// scaled counts profile actors that have not been asked to stop. Stopped
// actors may still be finishing their last action.
func (c *Coordinator) scaled() int {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	return len(c.stopChans)
}

func (c *Coordinator) stopActors(n int) {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	toStop := n
	if toStop > len(c.stopChans) {
		toStop = len(c.stopChans)
	}
	for i := 0; i < toStop; i++ {
		close(c.stopChans[i])
	}
	c.stopChans = c.stopChans[toStop:]
}

func (c *Coordinator) stopAllActors() {
	c.stopMu.Lock()
	for _, ch := range c.stopChans {
		close(ch)
	}
	c.stopChans = nil
	c.stopMu.Unlock()
}

// RunWithProfile walks profile's phases, scaling actors towards each phase's
// target and retuning rateLimiter to the phase rate. It returns once the
// profile completes or ctx ends; call Wait to join the actors.
func (c *Coordinator) RunWithProfile(ctx context.Context, profile *config.LoadProfile, workflow core.Workflow, rateLimiter *ratelimit.RateLimiter, prog *progress.Progress, limits core.Limits) {
	sched := ratelimit.NewSchedule(profile, c.clock)

	printMsg := func(format string, args ...interface{}) {
		if prog != nil {
			prog.Printf(format, args...)
		} else {
			c.log.Info().Msgf(format, args...)
		}
	}

	printMsg("Starting load profile with %d phases, total duration: %v",
		len(profile.Phases), profile.TotalDuration())

	currentPhaseIdx := -1
	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.stopAllActors()
			return
		case <-ticker.C:
			step := sched.Now()
			if step.Done {
				c.stopAllActors()
				return
			}
			if step.Index != currentPhaseIdx {
				currentPhaseIdx = step.Index
				if step.RPS > 0 {
					printMsg("Phase: %s (duration: %v, target actors: %d, rps: %d)",
						step.Phase.Name, step.Phase.Duration, step.Actors, step.RPS)
				} else {
					printMsg("Phase: %s (duration: %v, target actors: %d)",
						step.Phase.Name, step.Phase.Duration, step.Actors)
				}
			}
			current := c.scaled()
			if current < step.Actors {
				for i := current; i < step.Actors; i++ {
					c.spawnWithStop(ctx, workflow, limits)
				}
			} else if current > step.Actors {
				c.stopActors(current - step.Actors)
			}
			if rateLimiter != nil {
				rateLimiter.SetRate(step.RPS)
			}
		}
	}
}
