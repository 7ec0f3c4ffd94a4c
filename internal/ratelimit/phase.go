package ratelimit

import (
	"time"

	"settleload/internal/config"
	"settleload/internal/core"
)

// Step is the load profile state at one instant of a run.
type Step struct {
	Index  int // phase index, len(phases) once the profile is over
	Phase  config.Phase
	Actors int // actor target, interpolated on a ramp
	RPS    int // 0 leaves samples unthrottled
	Done   bool
}

// Schedule maps elapsed run time onto a load profile's phases.
type Schedule struct {
	phases []config.Phase
	ends   []time.Duration
	start  time.Time
	clock  core.Clock
}

// NewSchedule starts profile at clock's current time. A nil clock uses the
// wall clock.
func NewSchedule(profile *config.LoadProfile, clock core.Clock) *Schedule {
	if clock == nil {
		clock = core.RealClock{}
	}
	s := &Schedule{clock: clock, start: clock.Now()}
	if profile == nil {
		return s
	}
	s.phases = profile.Phases
	var end time.Duration
	for _, p := range s.phases {
		end += p.Duration
		s.ends = append(s.ends, end)
	}
	return s
}

// Elapsed returns the time since the schedule started.
func (s *Schedule) Elapsed() time.Duration {
	return s.clock.Since(s.start)
}

// Now returns the step in force at the current time.
func (s *Schedule) Now() Step {
	return s.At(s.Elapsed())
}

// At returns the step in force elapsed into the run.
func (s *Schedule) At(elapsed time.Duration) Step {
	for i, end := range s.ends {
		if elapsed >= end {
			continue
		}
		p := s.phases[i]
		return Step{
			Index:  i,
			Phase:  p,
			Actors: targetActors(p, elapsed-(end-p.Duration)),
			RPS:    p.RPS,
		}
	}
	return Step{Index: len(s.phases), Done: true}
}

// targetActors returns a level phase's count, or the ramp position into it.
func targetActors(p config.Phase, into time.Duration) int {
	switch {
	case p.Actors > 0:
		return p.Actors
	case p.StartActors == p.EndActors:
		return p.StartActors
	}
	progress := float64(into) / float64(p.Duration)
	if progress > 1 {
		progress = 1
	}
	return p.StartActors + int(float64(p.EndActors-p.StartActors)*progress)
}
