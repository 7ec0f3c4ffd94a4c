// Package collector aggregates replay samples and computes metrics.
package collector

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"settleload/internal/core"
)

const bufferSize = 1000

// Collector aggregates events from actors and produces a summary.
type Collector struct {
	events    []core.Event
	ch        chan core.Event
	done      chan struct{}
	mu        sync.Mutex
	dropped   atomic.Int64
	startTime time.Time
	endTime   time.Time
}

// NewCollector creates a new Collector and starts its collection goroutine.
func NewCollector() *Collector {
	c := &Collector{
		events:    make([]core.Event, 0),
		ch:        make(chan core.Event, bufferSize),
		done:      make(chan struct{}),
		startTime: time.Now(),
	}
	go c.collect()
	return c
}

func (c *Collector) collect() {
	for event := range c.ch {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}
	close(c.done)
}

// Report sends an event to the collector. Thread-safe. Events that do not
// fit in the buffer are counted and dropped; actors never block on it.
func (c *Collector) Report(event core.Event) {
	select {
	case c.ch <- event:
	default:
		c.dropped.Add(1)
	}
}

// Close signals the collector to stop accepting events and waits for the
// buffer to drain.
func (c *Collector) Close() {
	c.mu.Lock()
	c.endTime = time.Now()
	c.mu.Unlock()
	close(c.ch)
	<-c.done
}

// Events returns a copy of collected events.
func (c *Collector) Events() []core.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// DroppedEvents returns how many events were discarded because the buffer was full.
func (c *Collector) DroppedEvents() int64 {
	return c.dropped.Load()
}

// Duration returns the test duration.
// If the collector is closed, returns the duration from start to end.
// If still running, returns the duration from start to now.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// Compute returns metrics over everything collected so far.
func (c *Collector) Compute() *Metrics {
	m := ComputeMetrics(c.Events(), c.Duration())
	m.Dropped = c.DroppedEvents()
	return m
}

// PrintText writes the text report and returns the threshold outcome.
func (c *Collector) PrintText(w io.Writer, t *Thresholds) *ThresholdResults {
	m := c.Compute()
	results := t.Check(m)
	FormatText(w, m, results)
	return results
}

// PrintJSON writes the JSON report and returns the threshold outcome.
func (c *Collector) PrintJSON(w io.Writer, t *Thresholds) *ThresholdResults {
	m := c.Compute()
	results := t.Check(m)
	FormatJSON(w, m, results)
	return results
}
