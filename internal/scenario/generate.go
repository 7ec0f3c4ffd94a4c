// Package scenario expands test-plan parameters into an ordered list of
// actions, persists that list, and replays it cyclically.
package scenario

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"settleload/internal/action"
	"settleload/internal/plan"
)

// Generator expands Parameters into actions. The structure of the output is
// fixed by the parameters; field values are drawn from rng.
type Generator struct {
	rng   *rand.Rand
	now   func() time.Time
	newID func() string
}

// NewGenerator returns a Generator drawing values from src.
func NewGenerator(src rand.Source) *Generator {
	return &Generator{
		rng:   rand.New(src),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Generate expands p with a time-seeded generator.
func Generate(p *plan.Parameters) ([]action.Action, error) {
	return NewGenerator(rand.NewSource(time.Now().UnixNano())).Generate(p)
}

// Generate validates p and returns the full action sequence, or no actions at all.
func (g *Generator) Generate(p *plan.Parameters) ([]action.Action, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	t := p.Transfer
	out := make([]action.Action, 0, t.Count)
	for i := 0; i < t.Count; i++ {
		tr := g.transfer(t)
		out = append(out, action.Action{Type: action.Transfer, Request: tr})
		out = g.appendSecondary(out, p, i, tr.SettlementModel)
	}
	return out, nil
}

func (g *Generator) transfer(t plan.TransferGroup) action.TransferRequest {
	payer := g.pick(t.Participants)
	payee := g.pick(t.Participants)
	for payee == payer {
		payee = g.pick(t.Participants)
	}

	amount := t.AmountMin + g.rng.Intn(t.AmountMax-t.AmountMin+1)
	return action.TransferRequest{
		TransferID:      g.newID(),
		PayerFspID:      payer,
		PayeeFspID:      payee,
		CurrencyCode:    g.pick(t.Currencies),
		Amount:          decimal.NewFromInt(int64(amount)).String(),
		Timestamp:       g.now().UnixMilli(),
		SettlementModel: g.pick(t.SettlementModels),
	}
}

func (g *Generator) pick(values []string) string {
	return values[g.rng.Intn(len(values))]
}

// appendSecondary adds the interleaved actions due after transfer i.
func (g *Generator) appendSecondary(out []action.Action, p *plan.Parameters, i int, model string) []action.Action {
	m := p.Matrix
	due := []struct {
		interval int
		build    func() action.Action
	}{
		{p.Batch.GetByModel, func() action.Action {
			return action.Action{Type: action.GetBatchesByModel, Request: action.BatchQuery{SettlementModel: model}}
		}},
		{p.Transfer.GetByMatrixID, bare(action.TransfersByMatrixID)},
		{p.Transfer.GetByBatchID, bare(action.TransfersByBatchID)},
		{m.CreateStatic, func() action.Action {
			return action.Action{Type: action.CreateStaticMatrix, Request: action.StaticMatrixSpec{Type: action.MatrixStatic}}
		}},
		{m.AddBatchToStatic, bare(action.AddBatchToStaticMatrix)},
		{m.RemoveBatchFromStatic, bare(action.RemoveBatchFromStaticMatrix)},
		{m.GetStatic, bare(action.GetStaticMatrix)},
		{m.CreateDynamic, dynamic(action.CreateDynamicMatrix, model)},
		{m.GetDynamic, dynamic(action.GetDynamicMatrix, model)},
		{m.Close, bare(action.MatrixClose)},
		{m.Lock, bare(action.MatrixLock)},
		{m.Settle, bare(action.MatrixSettle)},
		{m.Dispute, bare(action.MatrixDispute)},
		{m.Recalculate, bare(action.MatrixRecalculate)},
	}

	for _, d := range due {
		if isDue(i, d.interval) {
			out = append(out, d.build())
		}
	}
	return out
}

// isDue reports whether an action with the given interval follows transfer i.
// An interval of zero disables the action.
func isDue(i, interval int) bool {
	if interval < 1 || i < interval {
		return false
	}
	return i%interval == 0
}

func bare(t action.Type) func() action.Action {
	return func() action.Action { return action.Action{Type: t} }
}

func dynamic(t action.Type, model string) func() action.Action {
	return func() action.Action {
		return action.Action{Type: t, Request: action.DynamicMatrixSpec{Type: action.MatrixDynamic, SettlementModel: model}}
	}
}
