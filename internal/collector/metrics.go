package collector

import (
	"sort"
	"time"
)

// Metrics contains aggregated replay results.
type Metrics struct {
	TotalSamples  int
	SuccessCount  int
	FailureCount  int
	SuccessRate   float64
	SamplesPerSec float64
	TestDuration  time.Duration
	BytesSent     int64
	BytesRecv     int64
	Dropped       int64
	Duration      DurationMetrics
	Actions       map[string]*ActionMetrics
	Classes       map[string]int
}

// DurationMetrics contains latency statistics.
type DurationMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// ActionMetrics contains per-action-type statistics.
type ActionMetrics struct {
	Count    int
	Success  int
	Failed   int
	Codes    map[string]int
	Duration DurationMetrics
}

// ComputePercentile returns the nearest-rank percentile of sorted.
// p is a fraction in [0, 1]; sorted must be ascending.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

// ComputeDurationMetrics calculates all duration statistics from durations.
// The input is not modified.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}
