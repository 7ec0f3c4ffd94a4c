package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"settleload/internal/action"
	"settleload/internal/core"
	"settleload/internal/dispatch"
	"settleload/internal/ratelimit"
	"settleload/internal/scenario"
	"settleload/internal/transport"
)

// Workflow executes one scenario action per Run. Every actor walks the
// scenario with its own cursor.
type Workflow struct {
	session *Session
	limiter *ratelimit.RateLimiter

	mu      sync.Mutex
	cursors map[int]*scenario.Cursor
}

// Workflow returns a workflow over s. A nil limiter runs unthrottled.
func (s *Session) Workflow(limiter *ratelimit.RateLimiter) *Workflow {
	return &Workflow{
		session: s,
		limiter: limiter,
		cursors: make(map[int]*scenario.Cursor),
	}
}

func (w *Workflow) cursor(actorID int) *scenario.Cursor {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.cursors[actorID]
	if !ok {
		c = w.session.store.NewCursor()
		w.cursors[actorID] = c
	}
	return c
}

// Run implements core.Workflow. A failed action is reported and does not
// stop the actor; only cancellation does.
func (w *Workflow) Run(ctx context.Context, actorID int, _ core.Coordinator, rep core.Reporter) error {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	ctx = core.ContextWithActorID(ctx, actorID)
	s := w.session.execute(ctx, w.cursor(actorID))

	// an action cut short by shutdown is not a sample of the service
	if err := ctx.Err(); err != nil {
		return err
	}
	rep.Report(EventFromSample(actorID, w.session.mode, s))
	return nil
}

// EventFromSample converts a dispatch sample into the collector's event shape.
func EventFromSample(actorID int, mode transport.Mode, s dispatch.Sample) core.Event {
	e := core.Event{
		ActorID:   actorID,
		Timestamp: time.Now(),
		Index:     s.Index,
		Action:    string(s.Action),
		Label:     s.Label,
		Transport: "rest",
		Duration:  s.Elapsed,
		Success:   s.Success,
		Class:     string(s.Class),
		Code:      s.ResponseCode,
		BytesSent: int64(len(s.RequestBytes)),
		BytesRecv: int64(len(s.ResponseBytes)),
	}
	if mode == transport.ModeAsync && s.Action == action.Transfer {
		e.Transport = "kafka"
	}
	var rej *dispatch.BusinessRejection
	if errors.As(s.Err, &rej) {
		e.Code = rej.Code
	}
	if !s.Success {
		e.Error = s.Message
	}
	return e
}
