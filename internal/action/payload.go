package action

// Payload is the request half of an Action. Each Type has exactly one
// payload shape; types whose inputs are all resolved at replay time carry nil.
type Payload interface {
	isPayload()
}

// TransferRequest is the body of a settlement transfer. TransferID and
// Timestamp are overwritten on every execution.
type TransferRequest struct {
	TransferID      string `json:"transferId"`
	PayerFspID      string `json:"payerFspId"`
	PayeeFspID      string `json:"payeeFspId"`
	CurrencyCode    string `json:"currencyCode"`
	Amount          string `json:"amount"`
	Timestamp       int64  `json:"timestamp"`
	SettlementModel string `json:"settlementModel"`
}

// RawTransfer is a pre-serialized transfer body sent verbatim.
type RawTransfer struct {
	Body string
}

// BatchQuery selects the batches of one settlement model.
type BatchQuery struct {
	SettlementModel string `json:"settlementModel"`
}

// StaticMatrixSpec describes a static matrix to create. The id is assigned at execution.
type StaticMatrixSpec struct {
	Type MatrixType `json:"type"`
}

// DynamicMatrixSpec describes a dynamic matrix, whose membership is defined by model.
type DynamicMatrixSpec struct {
	Type            MatrixType `json:"type"`
	SettlementModel string     `json:"settlementModel"`
}

func (TransferRequest) isPayload()   {}
func (RawTransfer) isPayload()       {}
func (BatchQuery) isPayload()        {}
func (StaticMatrixSpec) isPayload()  {}
func (DynamicMatrixSpec) isPayload() {}

type kind string

const (
	kindNone        kind = "empty"
	kindTransfer    kind = "transfer"
	kindRaw         kind = "raw"
	kindBatchQuery  kind = "batch-query"
	kindStaticSpec  kind = "static-matrix"
	kindDynamicSpec kind = "dynamic-matrix"
)

func payloadKind(t Type) kind {
	switch t {
	case Transfer:
		return kindTransfer
	case TransferRaw:
		return kindRaw
	case GetBatchesByModel:
		return kindBatchQuery
	case CreateStaticMatrix:
		return kindStaticSpec
	case CreateDynamicMatrix, GetDynamicMatrix:
		return kindDynamicSpec
	default:
		return kindNone
	}
}

func kindOf(p Payload) kind {
	switch p.(type) {
	case nil:
		return kindNone
	case TransferRequest:
		return kindTransfer
	case RawTransfer:
		return kindRaw
	case BatchQuery:
		return kindBatchQuery
	case StaticMatrixSpec:
		return kindStaticSpec
	case DynamicMatrixSpec:
		return kindDynamicSpec
	default:
		return kind("unknown")
	}
}
