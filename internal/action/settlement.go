package action

// MatrixType distinguishes explicit (static) from query-defined (dynamic) membership.
type MatrixType string

const (
	MatrixStatic  MatrixType = "STATIC"
	MatrixDynamic MatrixType = "DYNAMIC"
)

// MatrixState is the lifecycle state reported by the settlement service.
type MatrixState string

const (
	MatrixIdle      MatrixState = "IDLE"
	MatrixBusy      MatrixState = "BUSY"
	MatrixClosed    MatrixState = "CLOSED"
	MatrixLocked    MatrixState = "LOCKED"
	MatrixSettled   MatrixState = "SETTLED"
	MatrixDisputed  MatrixState = "DISPUTED"
	MatrixFinalized MatrixState = "FINALIZED"
	MatrixOutOfSync MatrixState = "OUT_OF_SYNC"
)

// Balance is the debit/credit pair every balance record shares.
type Balance struct {
	DebitBalance  string `json:"debitBalance"`
	CreditBalance string `json:"creditBalance"`
}

type BalanceByCurrency struct {
	CurrencyCode string `json:"currencyCode"`
	Balance
}

type BalanceByStateAndCurrency struct {
	BalanceByCurrency
	State string `json:"state"`
}

type BalanceByParticipant struct {
	BalanceByStateAndCurrency
	ParticipantID string `json:"participantId"`
}

// BatchAccount is a participant account inside a settlement batch.
type BatchAccount struct {
	AccountExtID  string `json:"accountExtId"`
	ParticipantID string `json:"participantId"`
	CurrencyCode  string `json:"currencyCode"`
	Balance
}

// SettlementBatch groups transfers sharing a model and currency.
type SettlementBatch struct {
	ID              string         `json:"id"`
	Timestamp       int64          `json:"timestamp"`
	SettlementModel string         `json:"settlementModel"`
	CurrencyCode    string         `json:"currencyCode"`
	BatchName       string         `json:"batchName"`
	BatchSequence   int            `json:"batchSequence"`
	State           string         `json:"state"`
	Accounts        []BatchAccount `json:"accounts,omitempty"`
}

// BatchSearchResults is the body of a batch lookup.
type BatchSearchResults struct {
	Items []SettlementBatch `json:"items"`
}

// MatrixBatch is a batch as seen inside a matrix.
type MatrixBatch struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Balance
}

// SettlementMatrix aggregates batches for joint processing.
type SettlementMatrix struct {
	ID                     string                      `json:"id"`
	CreatedAt              int64                       `json:"createdAt,omitempty"`
	UpdatedAt              int64                       `json:"updatedAt,omitempty"`
	DateFrom               int64                       `json:"dateFrom,omitempty"`
	DateTo                 int64                       `json:"dateTo,omitempty"`
	CurrencyCodes          []string                    `json:"currencyCodes,omitempty"`
	SettlementModel        string                      `json:"settlementModel,omitempty"`
	BatchStatuses          []string                    `json:"batchStatuses,omitempty"`
	Batches                []MatrixBatch               `json:"batches,omitempty"`
	State                  MatrixState                 `json:"state,omitempty"`
	Type                   MatrixType                  `json:"type,omitempty"`
	GenerationDurationSecs int                         `json:"generationDurationSecs,omitempty"`
	BalancesByCurrency     []BalanceByCurrency         `json:"balancesByCurrency,omitempty"`
	BalancesByState        []BalanceByStateAndCurrency `json:"balancesByStateAndCurrency,omitempty"`
	BalancesByParticipant  []BalanceByParticipant      `json:"balancesByParticipant,omitempty"`
}

// CreateMatrixRequest is the body of a matrix creation call, for either type.
type CreateMatrixRequest struct {
	MatrixID        string     `json:"matrixId"`
	Type            MatrixType `json:"type"`
	BatchIDs        []string   `json:"batchIds,omitempty"`
	SettlementModel string     `json:"settlementModel,omitempty"`
	CurrencyCodes   []string   `json:"currencyCodes,omitempty"`
	BatchStatuses   []string   `json:"batchStatuses,omitempty"`
	FromDate        int64      `json:"fromDate,omitempty"`
	ToDate          int64      `json:"toDate,omitempty"`
}

// BatchMembership adds or removes batches on a static matrix.
type BatchMembership struct {
	MatrixID string   `json:"matrixId"`
	BatchIDs []string `json:"batchIds"`
}

// BatchTransfer is a transfer as recorded inside a batch.
type BatchTransfer struct {
	TransferID        string `json:"transferId"`
	TransferTimestamp int64  `json:"transferTimestamp"`
	PayerFspID        string `json:"payerFspId"`
	PayeeFspID        string `json:"payeeFspId"`
	CurrencyCode      string `json:"currencyCode"`
	Amount            string `json:"amount"`
	BatchID           string `json:"batchId"`
	BatchName         string `json:"batchName"`
	JournalEntryID    string `json:"journalEntryId"`
	MatrixID          string `json:"matrixId,omitempty"`
}

// BatchTransferSearchResults is the body of a transfer lookup.
type BatchTransferSearchResults struct {
	Items []BatchTransfer `json:"items"`
}
