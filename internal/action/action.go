// Package action defines the unit of generated and replayed work against the
// settlement service, and the settlement records exchanged with it.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type tags an Action and selects its payload shape.
type Type string

const (
	Transfer                    Type = "transfer"
	TransferRaw                 Type = "transfer_raw"
	TransfersByMatrixID         Type = "transfers_by_matrix_id"
	TransfersByBatchID          Type = "transfers_by_batch_id"
	GetBatchesByModel           Type = "get_batches_by_model"
	CreateStaticMatrix          Type = "create_static_matrix"
	GetStaticMatrix             Type = "get_static_matrix"
	AddBatchToStaticMatrix      Type = "add_batch_to_static_matrix"
	RemoveBatchFromStaticMatrix Type = "remove_batch_from_static_matrix"
	CreateDynamicMatrix         Type = "create_dynamic_matrix"
	GetDynamicMatrix            Type = "get_dynamic_matrix"
	MatrixRecalculate           Type = "matrix_recalculate"
	MatrixClose                 Type = "matrix_close"
	MatrixLock                  Type = "matrix_lock"
	MatrixUnlock                Type = "matrix_unlock"
	MatrixSettle                Type = "matrix_settle"
	MatrixDispute               Type = "matrix_dispute"
)

// legacyNames maps the older scenario-file spellings onto current types.
var legacyNames = map[string]Type{
	"create_dynamic_matrix_model": CreateDynamicMatrix,
	"get_dynamic_matrix_model":    GetDynamicMatrix,
}

var knownTypes = map[Type]struct{}{
	Transfer: {}, TransferRaw: {}, TransfersByMatrixID: {}, TransfersByBatchID: {},
	GetBatchesByModel: {}, CreateStaticMatrix: {}, GetStaticMatrix: {},
	AddBatchToStaticMatrix: {}, RemoveBatchFromStaticMatrix: {},
	CreateDynamicMatrix: {}, GetDynamicMatrix: {}, MatrixRecalculate: {},
	MatrixClose: {}, MatrixLock: {}, MatrixUnlock: {}, MatrixSettle: {}, MatrixDispute: {},
}

// ErrUnknownType is returned when a scenario names an action type this tool has never heard of.
var ErrUnknownType = errors.New("unknown action type")

// ParseType resolves an action type name, accepting legacy spellings.
func ParseType(s string) (Type, error) {
	if t, ok := legacyNames[s]; ok {
		return t, nil
	}
	t := Type(s)
	if _, ok := knownTypes[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

func (t Type) String() string { return string(t) }

// Action is one unit of work. Templates loaded from a scenario are shared by
// every replay worker and must not be mutated; WithResponse returns a copy.
type Action struct {
	Type     Type
	Request  Payload
	Response json.RawMessage
}

// New builds an Action, checking that the payload shape matches the type.
func New(t Type, p Payload) (Action, error) {
	a := Action{Type: t, Request: p}
	if err := a.Validate(); err != nil {
		return Action{}, err
	}
	return a, nil
}

// WithResponse returns a copy of the action carrying the execution response.
func (a Action) WithResponse(resp json.RawMessage) Action {
	a.Response = resp
	return a
}

// Validate reports whether the payload is the shape the type expects.
func (a Action) Validate() error {
	if _, ok := knownTypes[a.Type]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, a.Type)
	}
	want := payloadKind(a.Type)
	got := kindOf(a.Request)
	if want != got {
		return fmt.Errorf("action %s: expected %s payload, got %s", a.Type, want, got)
	}
	return nil
}

type envelope struct {
	ActionType string          `json:"actionType"`
	Request    json.RawMessage `json:"request"`
	Response   json.RawMessage `json:"response"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	env := envelope{ActionType: string(a.Type)}

	var err error
	switch p := a.Request.(type) {
	case nil:
		env.Request = json.RawMessage("null")
	case RawTransfer:
		env.Request, err = json.Marshal(p.Body)
	default:
		env.Request, err = json.Marshal(p)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", a.Type, err)
	}

	env.Response = a.Response
	if len(env.Response) == 0 {
		env.Response = json.RawMessage("null")
	}
	return json.Marshal(env)
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	t, err := ParseType(env.ActionType)
	if err != nil {
		return err
	}

	p, err := decodePayload(t, env.Request)
	if err != nil {
		return fmt.Errorf("decoding %s request: %w", t, err)
	}

	a.Type = t
	a.Request = p
	a.Response = nil
	if len(env.Response) > 0 && string(env.Response) != "null" {
		a.Response = env.Response
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch payloadKind(t) {
	case kindTransfer:
		if isNull(raw) {
			return nil, errors.New("transfer request is required")
		}
		var p TransferRequest
		err := json.Unmarshal(raw, &p)
		return p, err
	case kindRaw:
		if isNull(raw) {
			return nil, errors.New("raw request body is required")
		}
		var body string
		if err := json.Unmarshal(raw, &body); err != nil {
			// Older files embedded the raw transfer as an object.
			return RawTransfer{Body: string(raw)}, nil
		}
		return RawTransfer{Body: body}, nil
	case kindBatchQuery:
		var p BatchQuery
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	case kindStaticSpec:
		p := StaticMatrixSpec{Type: MatrixStatic}
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	case kindDynamicSpec:
		p := DynamicMatrixSpec{Type: MatrixDynamic}
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	default:
		// Dependency-driven actions carry nothing known at generation time.
		return nil, nil
	}
}
