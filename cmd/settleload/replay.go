package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"settleload/internal/collector"
	"settleload/internal/config"
	"settleload/internal/coordinator"
	"settleload/internal/core"
	"settleload/internal/logging"
	"settleload/internal/metrics"
	"settleload/internal/progress"
	"settleload/internal/ratelimit"
	"settleload/internal/registry"
	"settleload/internal/replay"
	"settleload/internal/transport/rest"
)

// profileGrace is added to a load profile's length before the run is cut off.
const profileGrace = 5 * time.Second

type replayOptions struct {
	configPath string
	output     string
	quiet      bool
}

func replayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scenario against the settlement service",
		Long: `Replay a scenario file cyclically from many concurrent actors and
report the outcome. Settings come from --config, SETTLELOAD_* environment
variables and flags, flags taking precedence.

Exit codes: 0 success, 1 threshold check failed, 2 error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("--output must be 'text' or 'json', got %q", opts.output)
			}
			cfg, err := config.Load(opts.configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runReplay(ctx, cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	f.StringVar(&opts.output, "output", "text", "output format: text, json")
	f.BoolVar(&opts.quiet, "quiet", false, "suppress progress output during the run")
	f.String("scenario-file", "", "scenario file to replay")
	f.String("target", "", "transfer target: http(s) URL or broker list")
	f.String("rest-api", "", "REST endpoint for non-transfer actions")
	f.String("topic", config.DefaultTopic, "topic for asynchronous transfers")
	f.Int("actors", 1, "number of concurrent actors")
	f.Duration("duration", 0, "run length (0 = until iterations are exhausted or interrupted)")
	f.Int("max-iterations", 0, "max actions per actor (0 = unlimited)")
	f.Int("warmup-iterations", 0, "actions per actor executed before reporting starts")
	f.Duration("http-timeout", config.DefaultHTTPTimeout, "timeout of one REST call")
	f.Duration("batch-lookback", config.DefaultBatchLookback, "window for batch and matrix lookups by model")
	f.Int("queue-cap", registry.DefaultCapacity, "per-kind dependency queue bound")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	f.Bool("verbose", false, "dump every REST request and response to stderr")
	return cmd
}

// runReplay executes one run described by cfg and writes the report to out.
func runReplay(ctx context.Context, cfg *config.Config, opts replayOptions, out, errOut io.Writer) error {
	var sessionOpts []replay.Option
	sessionOpts = append(sessionOpts, replay.WithLogger(log.Logger))

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		sessionOpts = append(sessionOpts, replay.WithObserver(m), replay.WithDepthObserver(m.ObserveDepth))

		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, reg, log.Logger); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
	}
	if cfg.Verbose {
		sessionOpts = append(sessionOpts, replay.WithDebug(rest.NewDebugLogger(errOut)))
	}

	session, err := replay.Setup(cfg, sessionOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Teardown(); err != nil {
			log.Warn().Err(err).Msg("teardown")
		}
	}()

	coll := collector.NewCollector()
	coord := coordinator.NewCoordinator(coll, coordinator.WithLogger(log.Logger))
	prog := progress.NewProgress(coll, opts.quiet)
	prog.SetOutput(errOut)

	limits := core.Limits{
		MaxActions:    cfg.MaxIterations,
		WarmupActions: cfg.WarmupIterations,
	}

	runCtx := ctx
	if profile := cfg.LoadProfile; profile != nil && len(profile.Phases) > 0 {
		var limiter *ratelimit.RateLimiter
		for _, phase := range profile.Phases {
			if phase.RPS > 0 {
				limiter = ratelimit.NewRateLimiter(phase.RPS)
				break
			}
		}

		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, profile.TotalDuration()+profileGrace)
		defer cancel()

		prog.Printf("settleload starting with load profile: %d actions, target %s", session.Store().Len(), cfg.Target)
		prog.Start()
		coord.RunWithProfile(runCtx, profile, session.Workflow(limiter), limiter, prog, limits)
	} else {
		if cfg.Duration > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.Duration)
			defer cancel()
		}

		prog.Printf("settleload starting: %d actors, %d actions, target %s", cfg.Actors, session.Store().Len(), cfg.Target)
		prog.Start()
		coord.SpawnWithLimits(runCtx, cfg.Actors, session.Workflow(nil), limits)
	}
	coord.Wait()
	coll.Close()
	prog.Stop()

	var results *collector.ThresholdResults
	if opts.output == "json" {
		results = coll.PrintJSON(out, cfg.Thresholds)
	} else {
		results = coll.PrintText(out, cfg.Thresholds)
	}

	if ctx.Err() != nil {
		// interrupted runs report what they have and succeed
		return nil
	}
	if results != nil && !results.Passed {
		if opts.output == "text" {
			fmt.Fprintln(errOut, "\nThreshold check failed!")
		}
		return errThresholdFailed
	}
	return nil
}
