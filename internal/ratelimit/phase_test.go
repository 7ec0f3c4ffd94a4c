package ratelimit

import (
	"testing"
	"time"

	"settleload/internal/config"
	"settleload/internal/core"
)

var dayStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// settlementDay is a warm-up ramp, a throttled plateau of transfers and a
// wind-down to no actors.
func settlementDay() *config.LoadProfile {
	return &config.LoadProfile{Phases: []config.Phase{
		{Name: "open", Duration: 10 * time.Second, StartActors: 0, EndActors: 10},
		{Name: "peak", Duration: 20 * time.Second, Actors: 10, RPS: 200},
		{Name: "close", Duration: 10 * time.Second, StartActors: 10, EndActors: 0},
	}}
}

func TestSchedule_At(t *testing.T) {
	s := NewSchedule(settlementDay(), core.NewFakeClock(dayStart))

	tests := []struct {
		elapsed time.Duration
		index   int
		name    string
		actors  int
		rps     int
	}{
		{0, 0, "open", 0, 0},
		{5 * time.Second, 0, "open", 5, 0},
		{9999 * time.Millisecond, 0, "open", 9, 0},
		{10 * time.Second, 1, "peak", 10, 200},
		{29 * time.Second, 1, "peak", 10, 200},
		{30 * time.Second, 2, "close", 10, 0},
		{35 * time.Second, 2, "close", 5, 0},
	}
	for _, tt := range tests {
		got := s.At(tt.elapsed)
		if got.Done {
			t.Fatalf("At(%v) reported done", tt.elapsed)
		}
		if got.Index != tt.index || got.Phase.Name != tt.name || got.Actors != tt.actors || got.RPS != tt.rps {
			t.Errorf("At(%v) = {%d %s actors=%d rps=%d}, want {%d %s actors=%d rps=%d}",
				tt.elapsed, got.Index, got.Phase.Name, got.Actors, got.RPS, tt.index, tt.name, tt.actors, tt.rps)
		}
	}
}

func TestSchedule_DoneAfterLastPhase(t *testing.T) {
	s := NewSchedule(settlementDay(), core.NewFakeClock(dayStart))

	got := s.At(40 * time.Second)
	if !got.Done || got.Index != 3 || got.Actors != 0 || got.RPS != 0 {
		t.Errorf("At(end) = %+v, want a finished step", got)
	}
}

func TestSchedule_NowFollowsClock(t *testing.T) {
	clock := core.NewFakeClock(dayStart)
	s := NewSchedule(settlementDay(), clock)

	if got := s.Now(); got.Phase.Name != "open" {
		t.Errorf("expected open phase at start, got %q", got.Phase.Name)
	}
	clock.Advance(12 * time.Second)
	if s.Elapsed() != 12*time.Second {
		t.Errorf("expected 12s elapsed, got %v", s.Elapsed())
	}
	if got := s.Now(); got.Phase.Name != "peak" || got.RPS != 200 {
		t.Errorf("expected throttled peak at 12s, got %+v", got)
	}
	clock.Advance(time.Minute)
	if !s.Now().Done {
		t.Error("expected profile to be done")
	}
}

func TestSchedule_FlatRampHoldsStart(t *testing.T) {
	s := NewSchedule(&config.LoadProfile{Phases: []config.Phase{
		{Name: "flat", Duration: time.Second, StartActors: 3, EndActors: 3},
	}}, core.NewFakeClock(dayStart))

	if got := s.At(500 * time.Millisecond).Actors; got != 3 {
		t.Errorf("expected 3 actors, got %d", got)
	}
}

func TestSchedule_NilProfileIsDone(t *testing.T) {
	s := NewSchedule(nil, nil)
	if !s.Now().Done {
		t.Error("expected an empty schedule to be done")
	}
}
