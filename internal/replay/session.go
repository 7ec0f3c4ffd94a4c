// Package replay hosts a dispatcher for one run. A Session loads the
// scenario, wires the transports the target selects, and hands out
// per-actor workflows that execute the scenario cyclically.
package replay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"settleload/internal/config"
	"settleload/internal/dispatch"
	"settleload/internal/registry"
	"settleload/internal/scenario"
	"settleload/internal/transport"
	"settleload/internal/transport/kafka"
	"settleload/internal/transport/rest"
)

// Session owns the scenario, registry and transports of one run.
type Session struct {
	store  *scenario.Store
	disp   *dispatch.Dispatcher
	reg    *registry.Registry
	mode   transport.Mode
	cursor *scenario.Cursor
	log    zerolog.Logger

	transfers transport.TransferSubmitter
	api       *rest.Client

	teardown sync.Once
	err      error
}

type options struct {
	logger    zerolog.Logger
	observer  dispatch.Observer
	depth     func(registry.Kind, int)
	debug     *rest.DebugLogger
	transfers transport.TransferSubmitter
	dispatch  []dispatch.Option
}

// Option configures Setup.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver receives every sample outcome.
func WithObserver(obs dispatch.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithDepthObserver is told the depth of a registry queue after every change.
// fn must not call back into the session's registry.
func WithDepthObserver(fn func(registry.Kind, int)) Option {
	return func(o *options) { o.depth = fn }
}

// WithDebug dumps every REST exchange through d.
func WithDebug(d *rest.DebugLogger) Option {
	return func(o *options) { o.debug = d }
}

// WithTransferSubmitter replaces the broker producer used for an async
// target.
func WithTransferSubmitter(t transport.TransferSubmitter) Option {
	return func(o *options) { o.transfers = t }
}

// WithDispatchOptions passes extra options to the dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(o *options) { o.dispatch = append(o.dispatch, opts...) }
}

// Setup loads cfg.ScenarioFile and connects to the target. Transfers go
// to cfg.Target; every other action uses the REST endpoint.
func Setup(cfg *config.Config, opts ...Option) (*Session, error) {
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := scenario.Load(cfg.ScenarioFile)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.SyncEndpoint()
	if endpoint == "" {
		return nil, errors.New("no REST endpoint: set rest_api when the target is a broker address")
	}

	regOpts := []registry.Option{registry.WithCapacity(cfg.QueueCap)}
	if o.depth != nil {
		regOpts = append(regOpts, registry.WithObserver(o.depth))
	}
	reg := registry.New(regOpts...)

	api := rest.New(endpoint,
		rest.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		rest.WithDebug(o.debug),
	)

	mode := cfg.Mode()
	var transfers transport.TransferSubmitter = api
	if mode == transport.ModeAsync {
		transfers = o.transfers
		if transfers == nil {
			transfers = kafka.Dial(cfg.Target, cfg.Topic)
		}
	}

	dispOpts := []dispatch.Option{
		dispatch.WithTarget(cfg.Target),
		dispatch.WithLookback(cfg.BatchLookback),
		dispatch.WithLogger(o.logger),
	}
	if o.observer != nil {
		dispOpts = append(dispOpts, dispatch.WithObserver(o.observer))
	}
	dispOpts = append(dispOpts, o.dispatch...)

	s := &Session{
		store:     store,
		disp:      dispatch.New(transfers, api, reg, dispOpts...),
		reg:       reg,
		mode:      mode,
		cursor:    store.NewCursor(),
		log:       o.logger.With().Str("component", "replay").Logger(),
		transfers: transfers,
		api:       api,
	}
	s.log.Info().
		Str("scenario", cfg.ScenarioFile).
		Int("actions", store.Len()).
		Str("target", cfg.Target).
		Str("mode", string(mode)).
		Msg("replay session ready")
	return s, nil
}

// Store returns the loaded scenario.
func (s *Session) Store() *scenario.Store {
	return s.store
}

func (s *Session) Registry() *registry.Registry {
	return s.reg
}

// Mode reports the transfer strategy in use.
func (s *Session) Mode() transport.Mode {
	return s.mode
}

// ExecuteNext runs the next action of the session's own cursor.
func (s *Session) ExecuteNext(ctx context.Context) dispatch.Sample {
	return s.execute(ctx, s.cursor)
}

func (s *Session) execute(ctx context.Context, c *scenario.Cursor) dispatch.Sample {
	idx, tmpl := c.Next()
	return s.disp.Execute(ctx, idx, tmpl)
}

// Teardown clears the registry and closes the transports. It may be called
// more than once, and before any work has run.
func (s *Session) Teardown() error {
	s.teardown.Do(func() {
		s.reg.Clear()

		var errs []error
		if s.transfers != transport.TransferSubmitter(s.api) {
			if err := s.transfers.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing transfer transport: %w", err))
			}
		}
		if err := s.api.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing REST client: %w", err))
		}
		s.err = errors.Join(errs...)
		s.log.Debug().Err(s.err).Msg("replay session closed")
	})
	return s.err
}
