// Command settlestub runs an in-memory settlement service for replay runs
// that have no real deployment to hit.
//
// Usage:
//
//	settlestub [flags]
//
// Flags:
//
//	--addr          Address to listen on (default: localhost:8080)
//	--batch-size    Transfers per batch (default: 100)
//	--latency       Delay added to every response
//	--fail-rate     Fraction of requests answered with 503
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"settleload/internal/logging"
	"settleload/internal/stub"
)

func main() {
	addr := pflag.String("addr", "localhost:8080", "address to listen on")
	batchSize := pflag.Int("batch-size", stub.DefaultBatchSize, "transfers per batch")
	latency := pflag.Duration("latency", 0, "delay added to every response")
	failRate := pflag.Float64("fail-rate", 0, "fraction of requests answered with 503 (0-1)")
	seed := pflag.Int64("seed", time.Now().UnixNano(), "seed for induced failures")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := pflag.String("log-format", "console", "log format: console, json")
	pflag.Parse()

	logging.Setup(*logLevel, *logFormat)

	if *failRate < 0 || *failRate > 1 {
		fmt.Fprintf(os.Stderr, "error: --fail-rate must be between 0 and 1, got %v\n", *failRate)
		os.Exit(2)
	}

	server := stub.NewServer(
		stub.WithLogger(log.Logger),
		stub.WithBatchSize(*batchSize),
		stub.WithLatency(*latency),
		stub.WithFailureRate(*failRate, *seed),
	)

	fmt.Println("settlestub - In-memory Settlement Service")
	fmt.Println("=========================================")
	fmt.Printf("Listening on http://%s\n\n", *addr)
	fmt.Println("Endpoints:")
	fmt.Println("  GET    /health                        - Health check")
	fmt.Println("  POST   /transfers                     - Book a transfer into a batch")
	fmt.Println("  GET    /transfers?batchId|matrixId    - Transfers of a batch or matrix")
	fmt.Println("  GET    /batches                       - Batches by model (?settlementModel&fromDate&toDate)")
	fmt.Println("  POST   /matrices                      - Create a static or dynamic matrix")
	fmt.Println("  GET    /matrices                      - Matrices by model (?model&startDate&endDate)")
	fmt.Println("  GET    /matrices/{id}                 - Matrix with balances")
	fmt.Println("  POST   /matrices/{id}/batches         - Add batches to a static matrix")
	fmt.Println("  DELETE /matrices/{id}/batches         - Remove batches from a static matrix")
	fmt.Println("  POST   /matrices/{id}/{command}       - close, lock, settle, dispute, recalculate")
	fmt.Println()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Str("addr", *addr).Msg("stub server failed")
	}
}
