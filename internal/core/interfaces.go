// Package core defines the fundamental interfaces and types for settleload.
package core

import (
	"context"
	"time"
)

// Event is one executed action as seen by reporters. It is the reporting
// shape of a dispatch sample.
type Event struct {
	ActorID   int
	Timestamp time.Time
	Index     int    // position of the template in the scenario
	Action    string // action type identifier, e.g. "transfer"
	Label     string // [target]:[type], with a rejection code suffix when rejected
	Transport string // "rest" or "kafka"
	Duration  time.Duration
	Success   bool
	Class     string // outcome class, e.g. "ok", "transport_error"
	Code      string // "200", "401", "500", "500-503"
	Error     string
	BytesSent int64
	BytesRecv int64
}

// Workflow is the unit of work an actor repeats. A replay workflow executes
// one scenario action per Run.
type Workflow interface {
	Run(ctx context.Context, actorID int, coord Coordinator, rep Reporter) error
}

// Coordinator spawns and manages actors.
type Coordinator interface {
	Spawn(ctx context.Context, count int, workflow Workflow)
}

// Reporter is the interface actors use to send events to the Collector.
type Reporter interface {
	Report(Event)
}
