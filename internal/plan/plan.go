// Package plan loads and validates test-plan parameters, the compact
// description the scenario generator expands into actions.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrConfigurationInvalid marks test-plan parameters that must abort generation.
var ErrConfigurationInvalid = errors.New("configuration invalid")

// Parameters is the root of a test-plan file.
type Parameters struct {
	Transfer TransferGroup `yaml:"settlement-transfer" json:"settlement-transfer"`
	Matrix   MatrixGroup   `yaml:"settlement-matrix" json:"settlement-matrix"`
	Batch    BatchGroup    `yaml:"batch" json:"batch"`
}

// TransferGroup drives the primary transfer loop.
type TransferGroup struct {
	Count            int      `yaml:"count" json:"count"`
	AmountMin        int      `yaml:"amount-min" json:"amount-min"`
	AmountMax        int      `yaml:"amount-max" json:"amount-max"`
	MinMaxAmount     []int    `yaml:"min-max-amount,omitempty" json:"min-max-amount,omitempty"`
	Currencies       []string `yaml:"currencies" json:"currencies"`
	SettlementModels []string `yaml:"settlement-models" json:"settlement-models"`
	Participants     []string `yaml:"participants" json:"participants"`
	GetByBatchID     int      `yaml:"get-by-batch-id" json:"get-by-batch-id"`
	GetByMatrixID    int      `yaml:"get-by-matrix-id" json:"get-by-matrix-id"`
}

// MatrixGroup holds the intervals of the matrix lifecycle actions.
type MatrixGroup struct {
	CreateStatic          int `yaml:"create-static" json:"create-static"`
	AddBatchToStatic      int `yaml:"add-batch-to-static" json:"add-batch-to-static"`
	RemoveBatchFromStatic int `yaml:"remove-batch-from-static" json:"remove-batch-from-static"`
	GetStatic             int `yaml:"get-static" json:"get-static"`
	CreateDynamic         int `yaml:"create-dynamic-model" json:"create-dynamic-model"`
	GetDynamic            int `yaml:"get-dynamic-model" json:"get-dynamic-model"`
	Close                 int `yaml:"close" json:"close"`
	Lock                  int `yaml:"lock" json:"lock"`
	Settle                int `yaml:"settle" json:"settle"`
	Dispute               int `yaml:"dispute" json:"dispute"`
	Recalculate           int `yaml:"recalculate" json:"recalculate"`
}

// BatchGroup holds the batch lookup interval.
type BatchGroup struct {
	GetByModel int `yaml:"get-by-model" json:"get-by-model"`
}

// ValidationError lists every rule a Parameters value violates.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfigurationInvalid, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrConfigurationInvalid }

// Load reads a YAML or JSON test-plan file and validates it.
func Load(path string) (*Parameters, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading test plan: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses and validates test-plan parameters. Unknown keys are rejected.
func Decode(r io.Reader) (*Parameters, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading test plan: %w", err)
	}

	var p Parameters
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing test plan: %w", err)
	}
	p.normalize()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// normalize folds the two-element min-max-amount form into AmountMin/AmountMax.
func (p *Parameters) normalize() {
	t := &p.Transfer
	if len(t.MinMaxAmount) > 0 {
		t.AmountMin = t.MinMaxAmount[0]
		t.AmountMax = t.MinMaxAmount[0]
	}
	if len(t.MinMaxAmount) > 1 {
		t.AmountMax = t.MinMaxAmount[1]
	}
	t.MinMaxAmount = nil
}

// Validate checks every rule and reports all violations at once.
func (p *Parameters) Validate() error {
	var v []string
	nonNegative := func(name string, n int) {
		if n < 0 {
			v = append(v, fmt.Sprintf("%s must be >= 0, got %d", name, n))
		}
	}

	t := p.Transfer
	nonNegative("settlement-transfer.count", t.Count)
	nonNegative("settlement-transfer.get-by-batch-id", t.GetByBatchID)
	nonNegative("settlement-transfer.get-by-matrix-id", t.GetByMatrixID)

	m := p.Matrix
	nonNegative("settlement-matrix.create-static", m.CreateStatic)
	nonNegative("settlement-matrix.add-batch-to-static", m.AddBatchToStatic)
	nonNegative("settlement-matrix.remove-batch-from-static", m.RemoveBatchFromStatic)
	nonNegative("settlement-matrix.get-static", m.GetStatic)
	nonNegative("settlement-matrix.create-dynamic-model", m.CreateDynamic)
	nonNegative("settlement-matrix.get-dynamic-model", m.GetDynamic)
	nonNegative("settlement-matrix.close", m.Close)
	nonNegative("settlement-matrix.lock", m.Lock)
	nonNegative("settlement-matrix.settle", m.Settle)
	nonNegative("settlement-matrix.dispute", m.Dispute)
	nonNegative("settlement-matrix.recalculate", m.Recalculate)

	nonNegative("batch.get-by-model", p.Batch.GetByModel)

	if t.AmountMin > t.AmountMax {
		v = append(v, fmt.Sprintf("settlement-transfer amount-min (%d) cannot exceed amount-max (%d)", t.AmountMin, t.AmountMax))
	}

	if t.Count > 0 {
		if t.AmountMin < 1 {
			v = append(v, fmt.Sprintf("settlement-transfer amount-min must be > 0, got %d", t.AmountMin))
		}
		if len(t.Currencies) == 0 {
			v = append(v, "settlement-transfer.currencies requires at least one currency")
		}
		if len(t.SettlementModels) == 0 {
			v = append(v, "settlement-transfer.settlement-models requires at least one settlement model")
		}
		if distinct(t.Participants) < 2 {
			v = append(v, fmt.Sprintf("settlement-transfer.participants requires at least two distinct participants, got %d", distinct(t.Participants)))
		}
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

func distinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, s := range values {
		seen[s] = struct{}{}
	}
	return len(seen)
}
