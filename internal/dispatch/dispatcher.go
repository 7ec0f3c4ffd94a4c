// Package dispatch executes actions against the settlement service. It
// resolves each action's inputs from the dependency registry, calls the
// transport, classifies the outcome and publishes what the call produced.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"settleload/internal/action"
	"settleload/internal/core"
	"settleload/internal/registry"
	"settleload/internal/transport"
)

// DefaultLookback is the window used for batch and matrix lookups by model.
const DefaultLookback = 20 * time.Minute

// Observer receives every sample outcome, e.g. for metrics.
type Observer interface {
	Observe(actionType string, class string, elapsed time.Duration)
}

// Dispatcher is safe for concurrent use. Its only mutable state is the registry.
type Dispatcher struct {
	transfers transport.TransferSubmitter
	api       transport.Settlement
	reg       *registry.Registry

	target   string
	lookback time.Duration
	clock    core.Clock
	newID    func() string
	observer Observer
	log      zerolog.Logger

	handlers map[action.Type]handler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTarget sets the address shown in sample labels.
func WithTarget(addr string) Option {
	return func(d *Dispatcher) { d.target = addr }
}

// WithLookback sets the window for lookups by settlement model.
func WithLookback(w time.Duration) Option {
	return func(d *Dispatcher) { d.lookback = w }
}

func WithClock(c core.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithIDs sets the source of transfer and matrix ids.
func WithIDs(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New returns a Dispatcher submitting transfers through transfers and every
// other call through api. Both may be the same REST client.
func New(transfers transport.TransferSubmitter, api transport.Settlement, reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transfers: transfers,
		api:       api,
		reg:       reg,
		lookback:  DefaultLookback,
		clock:     core.RealClock{},
		newID:     uuid.NewString,
		log:       log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.With().Str("component", "dispatch").Logger()
	d.handlers = d.routes()
	return d
}

// Registry returns the registry the dispatcher reads and publishes to.
func (d *Dispatcher) Registry() *registry.Registry {
	return d.reg
}

// Execute runs one action template. Every failure is reported in the
// returned Sample; Execute never panics on a bad outcome and never mutates tmpl.
func (d *Dispatcher) Execute(ctx context.Context, index int, tmpl action.Action) Sample {
	start := d.clock.Now()
	out := d.run(ctx, tmpl)
	s := newSample(d.target, index, tmpl, out, d.clock.Since(start))

	d.report(s)
	return s
}

func (d *Dispatcher) run(ctx context.Context, tmpl action.Action) outcome {
	h, ok := d.handlers[tmpl.Type]
	if !ok {
		return outcome{path: "/" + string(tmpl.Type), err: unsupported(tmpl.Type)}
	}
	if err := tmpl.Validate(); err != nil {
		return outcome{path: h.path, err: &transport.Error{Op: "encode request", Err: err}}
	}
	out := h.run(ctx, tmpl)
	out.path = h.path
	return out
}

func (d *Dispatcher) report(s Sample) {
	if d.observer != nil {
		d.observer.Observe(string(s.Action), string(s.Class), s.Elapsed)
	}

	switch s.Class {
	case ClassOK:
		return
	case ClassDependencyUnavailable:
		d.log.Debug().Str("action", string(s.Action)).Int("index", s.Index).Err(s.Err).Msg("dependency not ready")
	default:
		d.log.Warn().
			Str("action", string(s.Action)).
			Str("class", string(s.Class)).
			Str("code", s.ResponseCode).
			Int("index", s.Index).
			Err(s.Err).
			Msg("action failed")
	}
}
