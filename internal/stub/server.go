// Package stub is an in-memory settlement service. It answers the REST
// calls the replay engine makes closely enough to drive a full scenario
// without a real deployment.
package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"settleload/internal/action"
)

// DefaultBatchSize is the number of transfers a batch takes before the
// next transfer of the same model and currency opens a new one.
const DefaultBatchSize = 100

var (
	errNotFound   = errors.New("not found")
	errConflict   = errors.New("already exists")
	errTransition = errors.New("illegal state transition")
)

// Server is the in-memory settlement service.
type Server struct {
	router *mux.Router
	log    zerolog.Logger

	batchSize int
	latency   time.Duration
	failRate  float64
	rng       *rand.Rand
	rngMu     sync.Mutex
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	batches   map[string]*batch
	open      map[string]string // model/currency -> open batch id
	sequence  map[string]int
	transfers []action.BatchTransfer
	seen      map[string]bool
	matrices  map[string]*matrix
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithBatchSize sets how many transfers fill a batch.
func WithBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithFailureRate answers the given fraction of requests with 503.
func WithFailureRate(rate float64, seed int64) Option {
	return func(s *Server) {
		s.failRate = rate
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithClock replaces the server's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer returns a Server with all routes registered.
func NewServer(opts ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		log:       zerolog.Nop(),
		batchSize: DefaultBatchSize,
		now:       time.Now,
		newID:     uuid.NewString,
		batches:   make(map[string]*batch),
		open:      make(map[string]string),
		sequence:  make(map[string]int),
		seen:      make(map[string]bool),
		matrices:  make(map[string]*matrix),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.middleware)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/transfers", s.handleCreateTransfer).Methods(http.MethodPost)
	r.HandleFunc("/transfers", s.handleTransfersByMatrix).Methods(http.MethodGet).Queries("matrixId", "{matrixId}")
	r.HandleFunc("/transfers", s.handleTransfersByBatch).Methods(http.MethodGet).Queries("batchId", "{batchId}")
	r.HandleFunc("/batches", s.handleBatches).Methods(http.MethodGet)
	r.HandleFunc("/matrices", s.handleCreateMatrix).Methods(http.MethodPost)
	r.HandleFunc("/matrices", s.handleMatricesByModel).Methods(http.MethodGet)
	r.HandleFunc("/matrices/{id}", s.handleMatrix).Methods(http.MethodGet)
	r.HandleFunc("/matrices/{id}/batches", s.handleAddBatches).Methods(http.MethodPost)
	r.HandleFunc("/matrices/{id}/batches", s.handleRemoveBatches).Methods(http.MethodDelete)
	r.HandleFunc("/matrices/{id}/{cmd:close|lock|settle|dispute|recalculate}", s.handleCommand).Methods(http.MethodPost)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.latency > 0 {
			time.Sleep(s.latency)
		}
		if s.shouldFail() {
			writeError(w, http.StatusServiceUnavailable, errors.New("induced failure"))
			return
		}
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("correlation_id", r.Header.Get("X-Correlation-ID")).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) shouldFail() bool {
	if s.rng == nil || s.failRate <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.failRate
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateTransfer books a transfer into the open batch for its model
// and currency. A duplicate transfer id is answered without a batchId.
func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var tr action.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&tr); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := validateTransfer(tr)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[tr.TransferID] {
		writeJSON(w, http.StatusOK, map[string]string{"transferId": tr.TransferID, "error": "duplicate transfer"})
		return
	}
	s.seen[tr.TransferID] = true

	b := s.openBatch(tr.SettlementModel, tr.CurrencyCode)
	b.post(tr, amount)
	s.transfers = append(s.transfers, action.BatchTransfer{
		TransferID:        tr.TransferID,
		TransferTimestamp: tr.Timestamp,
		PayerFspID:        tr.PayerFspID,
		PayeeFspID:        tr.PayeeFspID,
		CurrencyCode:      tr.CurrencyCode,
		Amount:            amount.String(),
		BatchID:           b.ID,
		BatchName:         b.BatchName,
		JournalEntryID:    s.newID(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"transferId": tr.TransferID, "batchId": b.ID})
}

func validateTransfer(tr action.TransferRequest) (decimal.Decimal, error) {
	switch {
	case tr.TransferID == "":
		return decimal.Zero, errors.New("transferId is required")
	case tr.PayerFspID == "" || tr.PayeeFspID == "":
		return decimal.Zero, errors.New("payerFspId and payeeFspId are required")
	case tr.PayerFspID == tr.PayeeFspID:
		return decimal.Zero, errors.New("payer and payee must differ")
	case tr.CurrencyCode == "":
		return decimal.Zero, errors.New("currencyCode is required")
	case tr.SettlementModel == "":
		return decimal.Zero, errors.New("settlementModel is required")
	}
	amount, err := decimal.NewFromString(tr.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount: %w", err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.New("amount must be positive")
	}
	return amount, nil
}

// openBatch returns the batch taking transfers for model and currency,
// opening a new one when none is open or the current one is full.
// Callers hold s.mu.
func (s *Server) openBatch(model, currency string) *batch {
	key := model + "/" + currency
	if id, ok := s.open[key]; ok {
		b := s.batches[id]
		if b.State == batchOpen && b.transfers < s.batchSize {
			return b
		}
	}

	s.sequence[key]++
	now := s.now()
	b := &batch{
		SettlementBatch: action.SettlementBatch{
			ID:              s.newID(),
			Timestamp:       now.UnixMilli(),
			SettlementModel: model,
			CurrencyCode:    currency,
			BatchName:       fmt.Sprintf("%s.%s.%s.%03d", model, currency, now.UTC().Format("2006.01.02.15.04"), s.sequence[key]),
			BatchSequence:   s.sequence[key],
			State:           batchOpen,
		},
		accounts: make(map[accountKey]*account),
	}
	s.batches[b.ID] = b
	s.open[key] = b.ID
	return b
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	model := q.Get("settlementModel")
	from, err := queryMillis(q.Get("fromDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := queryMillis(q.Get("toDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := action.BatchSearchResults{Items: []action.SettlementBatch{}}
	for _, b := range s.sortedBatches() {
		if model != "" && b.SettlementModel != model {
			continue
		}
		if (from > 0 && b.Timestamp < from) || (to > 0 && b.Timestamp > to) {
			continue
		}
		out.Items = append(out.Items, b.view())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) sortedBatches() []*batch {
	out := make([]*batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Server) handleCreateMatrix(w http.ResponseWriter, r *http.Request) {
	var req action.CreateMatrixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Type != action.MatrixStatic && req.Type != action.MatrixDynamic {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown matrix type %q", req.Type))
		return
	}
	if req.MatrixID == "" {
		req.MatrixID = s.newID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.matrices[req.MatrixID]; ok {
		writeError(w, http.StatusConflict, fmt.Errorf("matrix %s: %w", req.MatrixID, errConflict))
		return
	}
	for _, id := range req.BatchIDs {
		if _, ok := s.batches[id]; !ok {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("batch %s: %w", id, errNotFound))
			return
		}
	}

	m := newMatrix(req, s.now())
	if m.Type == action.MatrixDynamic {
		s.refresh(m)
	}
	s.matrices[m.ID] = m
	writeJSON(w, http.StatusOK, map[string]string{"id": m.ID})
}

// refresh recomputes a dynamic matrix's membership. Callers hold s.mu.
func (s *Server) refresh(m *matrix) {
	m.batchIDs = make(map[string]bool)
	for id, b := range s.batches {
		if m.selects(b) {
			m.batchIDs[id] = true
		}
	}
	m.UpdatedAt = s.now().UnixMilli()
}

func (s *Server) handleMatrix(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matrices[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m.view(s.batches))
}

func (s *Server) handleMatricesByModel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	model := q.Get("model")
	from, err := queryMillis(q.Get("startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := queryMillis(q.Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.matrices))
	for id := range s.matrices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := []action.SettlementMatrix{}
	for _, id := range ids {
		m := s.matrices[id]
		if model != "" && m.SettlementModel != model {
			continue
		}
		if (from > 0 && m.CreatedAt < from) || (to > 0 && m.CreatedAt > to) {
			continue
		}
		out = append(out, m.view(s.batches))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddBatches(w http.ResponseWriter, r *http.Request) {
	s.membership(w, r, func(m *matrix, id string) { m.batchIDs[id] = true })
}

func (s *Server) handleRemoveBatches(w http.ResponseWriter, r *http.Request) {
	s.membership(w, r, func(m *matrix, id string) { delete(m.batchIDs, id) })
}

// membership applies change to every batch in the request. Only idle
// static matrices accept membership changes.
func (s *Server) membership(w http.ResponseWriter, r *http.Request, change func(*matrix, string)) {
	var req action.BatchMembership
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matrices[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if m.Type != action.MatrixStatic {
		writeError(w, http.StatusUnprocessableEntity, errors.New("membership of a dynamic matrix is defined by its criteria"))
		return
	}
	if m.State != action.MatrixIdle {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("matrix is %s: %w", m.State, errTransition))
		return
	}
	for _, id := range req.BatchIDs {
		if _, ok := s.batches[id]; !ok {
			writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("batch %s: %w", id, errNotFound))
			return
		}
	}
	for _, id := range req.BatchIDs {
		change(m, id)
	}
	m.UpdatedAt = s.now().UnixMilli()
	writeJSON(w, http.StatusOK, m.view(s.batches))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matrices[vars["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err := s.apply(m, vars["cmd"]); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	m.UpdatedAt = s.now().UnixMilli()
	writeJSON(w, http.StatusOK, m.view(s.batches))
}

// apply runs a lifecycle command. Callers hold s.mu.
func (s *Server) apply(m *matrix, cmd string) error {
	from := m.State
	switch cmd {
	case "recalculate":
		if from != action.MatrixIdle && from != action.MatrixClosed && from != action.MatrixDisputed {
			return fmt.Errorf("recalculate from %s: %w", from, errTransition)
		}
		if m.Type == action.MatrixDynamic {
			s.refresh(m)
		}
		return nil
	case "close":
		if from != action.MatrixIdle {
			return fmt.Errorf("close from %s: %w", from, errTransition)
		}
		if m.Type == action.MatrixDynamic {
			s.refresh(m)
		}
		s.setBatchState(m, batchClosed)
		m.State = action.MatrixClosed
	case "lock":
		if from != action.MatrixClosed {
			return fmt.Errorf("lock from %s: %w", from, errTransition)
		}
		for _, id := range m.memberIDs() {
			if b := s.batches[id]; b != nil && b.lockedBy != "" && b.lockedBy != m.ID {
				return fmt.Errorf("batch %s is locked by matrix %s", id, b.lockedBy)
			}
		}
		for _, id := range m.memberIDs() {
			if b := s.batches[id]; b != nil {
				b.lockedBy = m.ID
			}
		}
		s.setBatchState(m, batchLocked)
		m.State = action.MatrixLocked
	case "settle":
		if from != action.MatrixLocked {
			return fmt.Errorf("settle from %s: %w", from, errTransition)
		}
		s.setBatchState(m, batchSettled)
		m.State = action.MatrixSettled
	case "dispute":
		if from == action.MatrixSettled || from == action.MatrixDisputed {
			return fmt.Errorf("dispute from %s: %w", from, errTransition)
		}
		s.setBatchState(m, batchDisputed)
		m.State = action.MatrixDisputed
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	s.log.Debug().Str("matrix", m.ID).Str("from", string(from)).Str("to", string(m.State)).Msg("matrix transition")
	return nil
}

func (s *Server) setBatchState(m *matrix, state string) {
	for _, id := range m.memberIDs() {
		if b := s.batches[id]; b != nil {
			b.State = state
		}
	}
}

func (s *Server) handleTransfersByMatrix(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["matrixId"]

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matrices[id]
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	out := action.BatchTransferSearchResults{Items: []action.BatchTransfer{}}
	for _, t := range s.transfers {
		if m.batchIDs[t.BatchID] {
			t.MatrixID = id
			out.Items = append(out.Items, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTransfersByBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["batchId"]

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[id]; !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	out := action.BatchTransferSearchResults{Items: []action.BatchTransfer{}}
	for _, t := range s.transfers {
		if t.BatchID == id {
			out.Items = append(out.Items, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func queryMillis(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", v)
	}
	return ms, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
