// Package progress prints a live one-line replay status to stderr.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"settleload/internal/collector"
)

const dependencyUnavailable = "dependency_unavailable"

type Progress struct {
	startTime time.Time
	collector *collector.Collector
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

func NewProgress(c *collector.Collector, quiet bool) *Progress {
	return &Progress{
		collector: c,
		quiet:     quiet,
		output:    os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(1 * time.Second)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	line := statusLine(p.collector.Compute(), time.Since(p.startTime))
	p.mu.Lock()
	fmt.Fprint(p.output, "\r\033[K"+line)
	p.mu.Unlock()
}

// statusLine renders m as "[mm:ss] Samples: ..". Dependency misses are shown
// apart from other failures.
func statusLine(m *collector.Metrics, elapsed time.Duration) string {
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	waiting := m.Classes[dependencyUnavailable]
	failed := m.FailureCount - waiting
	errorRate := 0.0
	if m.TotalSamples > 0 {
		errorRate = float64(failed) / float64(m.TotalSamples) * 100
	}
	return fmt.Sprintf("[%02d:%02d] Samples: %d | Rate: %.1f/s | Errors: %d (%.1f%%) | No dependency: %d",
		mins, secs, m.TotalSamples, m.SamplesPerSec, failed, errorRate, waiting)
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprint(p.output, "\r\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\r\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	p.Print(fmt.Sprintf(format, args...))
}
