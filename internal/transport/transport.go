// Package transport defines the contract shared by the synchronous (REST) and
// asynchronous (Kafka) strategies. Both report a Result holding the attempted
// payload and whatever response metadata the strategy can observe.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"settleload/internal/action"
)

// Result is the outcome of one transport call.
type Result struct {
	Sent       []byte
	Received   []byte
	StatusCode int
	// Accepted is set by transfer submissions: true when the synchronous
	// service returned a batch id, or when the asynchronous publish was acked.
	Accepted bool
}

// Error is a transport-level failure. Code is the HTTP status for a non-2xx
// response and zero for connection or encoding failures.
type Error struct {
	Op   string
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TransferSubmitter is the primary transport, used for transfer actions.
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, tr action.TransferRequest) (Result, error)
	Close() error
}

// MatrixCommand is a lifecycle operation on an existing matrix.
type MatrixCommand string

const (
	CommandClose       MatrixCommand = "close"
	CommandLock        MatrixCommand = "lock"
	CommandSettle      MatrixCommand = "settle"
	CommandDispute     MatrixCommand = "dispute"
	CommandRecalculate MatrixCommand = "recalculate"
)

// Settlement is the synchronous batch and matrix API. It is always reached
// over REST, whichever strategy submits transfers.
type Settlement interface {
	SubmitRaw(ctx context.Context, body string) (Result, error)
	Batches(ctx context.Context, model string, from, to time.Time) (Result, []action.SettlementBatch, error)
	CreateMatrix(ctx context.Context, req action.CreateMatrixRequest) (Result, error)
	Matrix(ctx context.Context, id string) (Result, error)
	MatricesByModel(ctx context.Context, model string, from, to time.Time) (Result, error)
	AddBatches(ctx context.Context, m action.BatchMembership) (Result, error)
	RemoveBatches(ctx context.Context, m action.BatchMembership) (Result, error)
	MatrixCommand(ctx context.Context, id string, cmd MatrixCommand) (Result, error)
	TransfersByMatrix(ctx context.Context, matrixID string) (Result, error)
	TransfersByBatch(ctx context.Context, batchID string) (Result, error)
}

// Mode is the transfer strategy chosen from the target address.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// ModeFor selects the synchronous strategy for URL-like addresses and the
// asynchronous one for broker addresses such as "host:9092".
func ModeFor(addr string) Mode {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(addr)), "http") {
		return ModeSync
	}
	return ModeAsync
}
