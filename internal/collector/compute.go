package collector

import (
	"time"

	"settleload/internal/core"
)

// ComputeMetrics computes metrics from events. Pure function, no side effects.
func ComputeMetrics(events []core.Event, testDuration time.Duration) *Metrics {
	m := &Metrics{
		Actions:      make(map[string]*ActionMetrics),
		Classes:      make(map[string]int),
		TestDuration: testDuration,
	}

	if len(events) == 0 {
		return m
	}

	allDurations := make([]time.Duration, 0, len(events))
	actionDurations := make(map[string][]time.Duration)

	for _, e := range events {
		m.TotalSamples++
		if e.Success {
			m.SuccessCount++
		} else {
			m.FailureCount++
		}
		m.BytesSent += e.BytesSent
		m.BytesRecv += e.BytesRecv
		if e.Class != "" {
			m.Classes[e.Class]++
		}

		allDurations = append(allDurations, e.Duration)

		am, ok := m.Actions[e.Action]
		if !ok {
			am = &ActionMetrics{Codes: make(map[string]int)}
			m.Actions[e.Action] = am
		}
		am.Count++
		if e.Success {
			am.Success++
		} else {
			am.Failed++
		}
		if e.Code != "" {
			am.Codes[e.Code]++
		}
		actionDurations[e.Action] = append(actionDurations[e.Action], e.Duration)
	}

	m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalSamples) * 100
	if m.TestDuration > 0 {
		m.SamplesPerSec = float64(m.TotalSamples) / m.TestDuration.Seconds()
	}

	m.Duration = ComputeDurationMetrics(allDurations)
	for name, durations := range actionDurations {
		m.Actions[name].Duration = ComputeDurationMetrics(durations)
	}

	return m
}
