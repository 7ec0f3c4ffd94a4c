package collector

import (
	"testing"
	"time"

	"settleload/internal/core"
)

func TestComputeMetrics_EmptyEvents(t *testing.T) {
	m := ComputeMetrics(nil, 10*time.Second)

	if m.TotalSamples != 0 {
		t.Errorf("expected 0 samples, got %d", m.TotalSamples)
	}
	if m.Actions == nil || m.Classes == nil {
		t.Error("expected initialized maps")
	}
	if m.TestDuration != 10*time.Second {
		t.Errorf("expected test duration 10s, got %v", m.TestDuration)
	}
}

func TestComputeMetrics_SuccessRateAndThroughput(t *testing.T) {
	events := []core.Event{
		{Action: "transfer", Success: true},
		{Action: "transfer", Success: true},
		{Action: "transfer", Success: true},
		{Action: "transfer", Success: false},
	}
	m := ComputeMetrics(events, 2*time.Second)

	if m.SuccessRate != 75.0 {
		t.Errorf("expected 75%% success rate, got %.2f", m.SuccessRate)
	}
	if m.SamplesPerSec != 2.0 {
		t.Errorf("expected 2 samples/sec, got %.2f", m.SamplesPerSec)
	}
}

func TestComputeMetrics_ZeroDuration(t *testing.T) {
	m := ComputeMetrics([]core.Event{{Action: "transfer", Success: true}}, 0)
	if m.SamplesPerSec != 0 {
		t.Errorf("expected 0 samples/sec for zero duration, got %.2f", m.SamplesPerSec)
	}
}

func TestComputeMetrics_GroupsByAction(t *testing.T) {
	events := []core.Event{
		{Action: "transfer", Code: "200", Success: true, Duration: 10 * time.Millisecond},
		{Action: "transfer", Code: "401", Success: false, Duration: 30 * time.Millisecond},
		{Action: "matrix_close", Code: "500", Success: false, Duration: 5 * time.Millisecond},
	}
	m := ComputeMetrics(events, time.Second)

	if len(m.Actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(m.Actions))
	}
	tr := m.Actions["transfer"]
	if tr.Count != 2 || tr.Success != 1 || tr.Failed != 1 {
		t.Errorf("unexpected transfer metrics: %+v", tr)
	}
	if tr.Codes["200"] != 1 || tr.Codes["401"] != 1 {
		t.Errorf("unexpected transfer codes: %v", tr.Codes)
	}
	if tr.Duration.Avg != 20*time.Millisecond {
		t.Errorf("expected transfer avg 20ms, got %v", tr.Duration.Avg)
	}
	if m.Actions["matrix_close"].Failed != 1 {
		t.Errorf("expected 1 failed matrix_close, got %d", m.Actions["matrix_close"].Failed)
	}
}

func TestComputeMetrics_CountsClassesAndBytes(t *testing.T) {
	events := []core.Event{
		{Action: "transfer", Class: "ok", Success: true, BytesSent: 100, BytesRecv: 40},
		{Action: "matrix_lock", Class: "dependency_unavailable", BytesSent: 2},
		{Action: "matrix_lock", Class: "dependency_unavailable", BytesSent: 2},
		{Action: "transfer"},
	}
	m := ComputeMetrics(events, time.Second)

	if m.Classes["ok"] != 1 || m.Classes["dependency_unavailable"] != 2 {
		t.Errorf("unexpected classes: %v", m.Classes)
	}
	if _, ok := m.Classes[""]; ok {
		t.Error("events without a class must not be counted")
	}
	if m.BytesSent != 104 || m.BytesRecv != 40 {
		t.Errorf("unexpected bytes sent=%d recv=%d", m.BytesSent, m.BytesRecv)
	}
}

func TestComputeDurationMetrics(t *testing.T) {
	durations := []time.Duration{50, 10, 40, 20, 30, 100, 90, 80, 70, 60}
	d := ComputeDurationMetrics(durations)

	if d.Min != 10 || d.Max != 100 {
		t.Errorf("expected min 10 max 100, got %v %v", d.Min, d.Max)
	}
	if d.Avg != 55 {
		t.Errorf("expected avg 55, got %v", d.Avg)
	}
	if d.P50 != 50 || d.P90 != 90 || d.P99 != 90 {
		t.Errorf("unexpected percentiles: %+v", d)
	}
	if durations[0] != 50 {
		t.Error("input must not be reordered")
	}
}

func TestComputePercentile(t *testing.T) {
	sorted := []time.Duration{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, 10},
		{0.5, 50},
		{0.9, 90},
		{1, 100},
	}
	for _, tt := range tests {
		if got := ComputePercentile(sorted, tt.p); got != tt.want {
			t.Errorf("ComputePercentile(%v) = %v, expected %v", tt.p, got, tt.want)
		}
	}
	if got := ComputePercentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0 for empty input, got %v", got)
	}
}

func BenchmarkComputeMetrics(b *testing.B) {
	events := make([]core.Event, 10000)
	for i := range events {
		events[i] = core.Event{Action: "transfer", Class: "ok", Success: i%10 != 0, Duration: time.Duration(i) * time.Microsecond}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeMetrics(events, 10*time.Second)
	}
}
