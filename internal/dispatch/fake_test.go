package dispatch

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"settleload/internal/action"
	"settleload/internal/transport"
)

// fakeService records calls and answers like a healthy settlement service
// unless an error is configured for a call name.
type fakeService struct {
	mu        sync.Mutex
	calls     []string
	transfers []action.TransferRequest
	fail      map[string]error
	reject    bool
	batches   []action.SettlementBatch
	windows   [][2]time.Time

	// before, if set, runs ahead of every call and may block it.
	before func(name string)
}

func newFakeService() *fakeService {
	return &fakeService{fail: map[string]error{}}
}

func (f *fakeService) record(name string) error {
	if f.before != nil {
		f.before(name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeService) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) result(v any) transport.Result {
	b, _ := json.Marshal(v)
	return transport.Result{Sent: []byte(`{"sent":true}`), Received: b, StatusCode: 200}
}

func (f *fakeService) SubmitTransfer(_ context.Context, tr action.TransferRequest) (transport.Result, error) {
	if err := f.record("transfer"); err != nil {
		return transport.Result{}, err
	}
	f.mu.Lock()
	f.transfers = append(f.transfers, tr)
	reject := f.reject
	f.mu.Unlock()

	sent, _ := json.Marshal(tr)
	if reject {
		return transport.Result{Sent: sent, Received: []byte(`{"batchId":null}`), StatusCode: 200}, nil
	}
	return transport.Result{Sent: sent, Received: []byte(`{"batchId":"b-1"}`), StatusCode: 200, Accepted: true}, nil
}

func (f *fakeService) SubmitRaw(_ context.Context, body string) (transport.Result, error) {
	if err := f.record("raw"); err != nil {
		return transport.Result{}, err
	}
	return transport.Result{Sent: []byte(body), Received: []byte(`{"batchId":"b-raw"}`), StatusCode: 200, Accepted: !f.reject}, nil
}

func (f *fakeService) Close() error { return nil }

func (f *fakeService) Batches(_ context.Context, model string, from, to time.Time) (transport.Result, []action.SettlementBatch, error) {
	if err := f.record("batches:" + model); err != nil {
		return transport.Result{}, nil, err
	}
	f.mu.Lock()
	f.windows = append(f.windows, [2]time.Time{from, to})
	items := append([]action.SettlementBatch(nil), f.batches...)
	f.mu.Unlock()
	return f.result(action.BatchSearchResults{Items: items}), items, nil
}

func (f *fakeService) CreateMatrix(_ context.Context, req action.CreateMatrixRequest) (transport.Result, error) {
	if err := f.record("create:" + string(req.Type) + ":" + req.MatrixID); err != nil {
		return transport.Result{}, err
	}
	return f.result(req), nil
}

func (f *fakeService) Matrix(_ context.Context, id string) (transport.Result, error) {
	if err := f.record("matrix:" + id); err != nil {
		return transport.Result{}, err
	}
	return f.result(action.SettlementMatrix{ID: id}), nil
}

func (f *fakeService) MatricesByModel(_ context.Context, model string, _, _ time.Time) (transport.Result, error) {
	if err := f.record("matrices:" + model); err != nil {
		return transport.Result{}, err
	}
	return f.result([]action.SettlementMatrix{}), nil
}

func (f *fakeService) AddBatches(_ context.Context, m action.BatchMembership) (transport.Result, error) {
	if err := f.record("add:" + m.MatrixID + ":" + m.BatchIDs[0]); err != nil {
		return transport.Result{}, err
	}
	return f.result(m), nil
}

func (f *fakeService) RemoveBatches(_ context.Context, m action.BatchMembership) (transport.Result, error) {
	if err := f.record("remove:" + m.MatrixID + ":" + m.BatchIDs[0]); err != nil {
		return transport.Result{}, err
	}
	return f.result(m), nil
}

func (f *fakeService) MatrixCommand(_ context.Context, id string, cmd transport.MatrixCommand) (transport.Result, error) {
	if err := f.record(string(cmd) + ":" + id); err != nil {
		return transport.Result{}, err
	}
	return f.result(action.SettlementMatrix{ID: id}), nil
}

func (f *fakeService) TransfersByMatrix(_ context.Context, id string) (transport.Result, error) {
	if err := f.record("transfers-by-matrix:" + id); err != nil {
		return transport.Result{}, err
	}
	return f.result(action.BatchTransferSearchResults{}), nil
}

func (f *fakeService) TransfersByBatch(_ context.Context, id string) (transport.Result, error) {
	if err := f.record("transfers-by-batch:" + id); err != nil {
		return transport.Result{}, err
	}
	return f.result(action.BatchTransferSearchResults{}), nil
}

// sequentialIDs returns "id-1", "id-2", ...
func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "id-" + strconv.Itoa(n)
	}
}
