package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// FormatText writes metrics in human-readable format.
func FormatText(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	if m.TotalSamples == 0 {
		fmt.Fprintln(w, "No samples collected")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "settleload - Replay Results")
	fmt.Fprintln(w, "===========================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", m.TestDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Samples:  %s\n", formatNumber(m.TotalSamples))
	fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
		m.SuccessRate, formatNumber(m.SuccessCount), formatNumber(m.TotalSamples))
	fmt.Fprintf(w, "Samples/sec:    %.1f\n", m.SamplesPerSec)
	if m.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:        %s (collector buffer full)\n", formatNumber(int(m.Dropped)))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Response Times:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(m.Duration.Min))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(m.Duration.Avg))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(m.Duration.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(m.Duration.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(m.Duration.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(m.Duration.P99))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(m.Duration.Max))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Action:")
	for _, name := range sortedKeys(m.Actions) {
		am := m.Actions[name]
		fmt.Fprintf(w, "  %-32s %s samples   failed=%s  avg=%s  p95=%s  p99=%s\n",
			name, formatNumber(am.Count), formatNumber(am.Failed),
			FormatDuration(am.Duration.Avg),
			FormatDuration(am.Duration.P95),
			FormatDuration(am.Duration.P99))
	}

	if len(m.Classes) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Outcomes:")
		for _, class := range sortedKeys(m.Classes) {
			fmt.Fprintf(w, "  %-32s %s\n", class, formatNumber(m.Classes[class]))
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n",
				symbol, result.Name, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes metrics in JSON format.
func FormatJSON(w io.Writer, m *Metrics, thresholds *ThresholdResults) {
	output := struct {
		Duration      string                       `json:"duration"`
		TotalSamples  int                          `json:"totalSamples"`
		SuccessCount  int                          `json:"successCount"`
		FailureCount  int                          `json:"failureCount"`
		SuccessRate   float64                      `json:"successRate"`
		SamplesPerSec float64                      `json:"samplesPerSec"`
		BytesSent     int64                        `json:"bytesSent"`
		BytesRecv     int64                        `json:"bytesRecv"`
		Dropped       int64                        `json:"dropped"`
		Durations     jsonDurationMetrics          `json:"durations"`
		Actions       map[string]jsonActionMetrics `json:"actions"`
		Classes       map[string]int               `json:"classes"`
		Thresholds    *ThresholdResults            `json:"thresholds,omitempty"`
	}{
		Duration:      m.TestDuration.Round(time.Millisecond).String(),
		TotalSamples:  m.TotalSamples,
		SuccessCount:  m.SuccessCount,
		FailureCount:  m.FailureCount,
		SuccessRate:   m.SuccessRate,
		SamplesPerSec: m.SamplesPerSec,
		BytesSent:     m.BytesSent,
		BytesRecv:     m.BytesRecv,
		Dropped:       m.Dropped,
		Durations:     toJSONDurationMetrics(m.Duration),
		Actions:       make(map[string]jsonActionMetrics),
		Classes:       m.Classes,
		Thresholds:    thresholds,
	}

	for name, am := range m.Actions {
		var rate float64
		if am.Count > 0 {
			rate = float64(am.Success) / float64(am.Count) * 100
		}
		output.Actions[name] = jsonActionMetrics{
			Count:       am.Count,
			Success:     am.Success,
			Failed:      am.Failed,
			SuccessRate: rate,
			Codes:       am.Codes,
			Durations:   toJSONDurationMetrics(am.Duration),
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonActionMetrics struct {
	Count       int                 `json:"count"`
	Success     int                 `json:"success"`
	Failed      int                 `json:"failed"`
	SuccessRate float64             `json:"successRate"`
	Codes       map[string]int      `json:"codes,omitempty"`
	Durations   jsonDurationMetrics `json:"durations"`
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

// formatNumber groups thousands with commas.
func formatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
