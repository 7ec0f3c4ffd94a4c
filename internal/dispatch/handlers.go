package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"settleload/internal/action"
	"settleload/internal/registry"
	"settleload/internal/transport"
)

type handler struct {
	path string
	run  func(ctx context.Context, a action.Action) outcome
}

type outcome struct {
	path     string
	sent     []byte
	received []byte
	err      error
}

func fromResult(res transport.Result, err error) outcome {
	return outcome{sent: res.Sent, received: res.Received, err: err}
}

// routes binds every supported type to its handler. matrix_unlock has no
// handler and is reported as unsupported.
func (d *Dispatcher) routes() map[action.Type]handler {
	return map[action.Type]handler{
		action.Transfer:                    {"/transfers", d.transfer},
		action.TransferRaw:                 {"/transfers", d.transferRaw},
		action.GetBatchesByModel:           {"/batches", d.batchesByModel},
		action.TransfersByMatrixID:         {"/transfers?matrixId", d.transfersByMatrix},
		action.TransfersByBatchID:          {"/transfers?batchId", d.transfersByBatch},
		action.CreateStaticMatrix:          {"/matrices", d.createStatic},
		action.GetStaticMatrix:             {"/matrices/{id}", d.getStatic},
		action.AddBatchToStaticMatrix:      {"/matrices/{id}/batches", d.addBatch},
		action.RemoveBatchFromStaticMatrix: {"/matrices/{id}/batches", d.removeBatch},
		action.CreateDynamicMatrix:         {"/matrices", d.createDynamic},
		action.GetDynamicMatrix:            {"/matrices?model", d.getDynamic},
		action.MatrixClose: {"/matrices/{id}/close", d.command(transport.CommandClose,
			d.takeDynamic, publishStage(d.reg.Closed, registry.StageClosed))},
		action.MatrixLock: {"/matrices/{id}/lock", d.command(transport.CommandLock,
			takeStage(d.reg.Closed), publishStage(d.reg.Locked, registry.StageLocked))},
		action.MatrixSettle: {"/matrices/{id}/settle", d.command(transport.CommandSettle,
			takeStage(d.reg.Locked), nil)},
		action.MatrixDispute: {"/matrices/{id}/dispute", d.command(transport.CommandDispute,
			d.takeDynamic, nil)},
		action.MatrixRecalculate: {"/matrices/{id}/recalculate", d.command(transport.CommandRecalculate,
			d.takeDynamic, d.returnDynamic)},
	}
}

func unsupported(t action.Type) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedAction, t)
}

// accepted turns an unaccepted transfer into a business rejection.
func accepted(res transport.Result, err error) outcome {
	out := fromResult(res, err)
	if err == nil && !res.Accepted {
		out.err = &BusinessRejection{Code: "401", Body: res.Received}
	}
	return out
}

// transfer stamps a fresh id and timestamp on a copy of the template.
func (d *Dispatcher) transfer(ctx context.Context, a action.Action) outcome {
	tr := a.Request.(action.TransferRequest)
	tr.TransferID = d.newID()
	tr.Timestamp = d.clock.Now().UnixMilli()
	return accepted(d.transfers.SubmitTransfer(ctx, tr))
}

func (d *Dispatcher) transferRaw(ctx context.Context, a action.Action) outcome {
	raw := a.Request.(action.RawTransfer)
	return accepted(d.api.SubmitRaw(ctx, raw.Body))
}

// batchesByModel replaces the batch queue with the batches found in the
// look-back window. Batches from an older window are no longer eligible.
func (d *Dispatcher) batchesByModel(ctx context.Context, a action.Action) outcome {
	q := a.Request.(action.BatchQuery)
	now := d.clock.Now()
	res, items, err := d.api.Batches(ctx, q.SettlementModel, now.Add(-d.lookback), now)
	out := fromResult(res, err)
	out.sent = encode(q)
	if err != nil {
		return out
	}

	refs := make([]registry.BatchRef, 0, len(items))
	for _, b := range items {
		if b.ID == "" {
			continue
		}
		model := b.SettlementModel
		if model == "" {
			model = q.SettlementModel
		}
		refs = append(refs, registry.BatchRef{ID: b.ID, SettlementModel: model})
	}
	d.reg.Batches.Replace(refs)
	return out
}

// transfersByMatrix borrows a static matrix, or a dynamic one when no
// static matrix exists, and returns it to its queue afterwards.
func (d *Dispatcher) transfersByMatrix(ctx context.Context, a action.Action) outcome {
	var id string
	if ref, gen, ok := d.reg.StaticMatrices.Borrow(); ok {
		defer d.reg.StaticMatrices.Return(ref, gen)
		id = ref.MatrixID
	} else if ref, gen, ok := d.reg.DynamicMatrices.Borrow(); ok {
		defer d.reg.DynamicMatrices.Return(ref, gen)
		id = ref.MatrixID
	} else {
		return outcome{err: unavailable("no matrix to fetch transfers from")}
	}

	out := fromResult(d.api.TransfersByMatrix(ctx, id))
	out.sent = encode(map[string]string{"matrixId": id})
	return out
}

func (d *Dispatcher) transfersByBatch(ctx context.Context, a action.Action) outcome {
	// A refresh while the lookup is in flight retires the borrowed batch.
	ref, gen, ok := d.reg.Batches.Borrow()
	if !ok {
		return outcome{err: unavailable("no batch to fetch transfers from")}
	}
	defer d.reg.Batches.Return(ref, gen)

	out := fromResult(d.api.TransfersByBatch(ctx, ref.ID))
	out.sent = encode(map[string]string{"batchId": ref.ID})
	return out
}

func (d *Dispatcher) createStatic(ctx context.Context, a action.Action) outcome {
	id := d.newID()
	res, err := d.api.CreateMatrix(ctx, action.CreateMatrixRequest{MatrixID: id, Type: action.MatrixStatic})
	if err == nil {
		d.reg.StaticMatrices.Publish(registry.StaticMatrixRef{MatrixID: id})
	}
	return fromResult(res, err)
}

// getStatic borrows a static matrix for the lookup.
func (d *Dispatcher) getStatic(ctx context.Context, a action.Action) outcome {
	ref, gen, ok := d.reg.StaticMatrices.Borrow()
	if !ok {
		return outcome{err: unavailable("no static matrix to fetch")}
	}
	defer d.reg.StaticMatrices.Return(ref, gen)

	out := fromResult(d.api.Matrix(ctx, ref.MatrixID))
	out.sent = encode(action.SettlementMatrix{ID: ref.MatrixID, Type: action.MatrixStatic})
	return out
}

// addBatch consumes a batch and borrows a static matrix. When only the batch
// is available it goes back to the queue untouched, unless the queue was
// refreshed in the meantime.
func (d *Dispatcher) addBatch(ctx context.Context, a action.Action) outcome {
	batch, batchGen, ok := d.reg.Batches.Borrow()
	if !ok {
		return outcome{err: unavailable("no batch available to add")}
	}
	matrix, gen, ok := d.reg.StaticMatrices.Borrow()
	if !ok {
		d.reg.Batches.Return(batch, batchGen)
		return outcome{err: unavailable("no static matrix to add a batch to")}
	}
	defer d.reg.StaticMatrices.Return(matrix, gen)

	m := action.BatchMembership{MatrixID: matrix.MatrixID, BatchIDs: []string{batch.ID}}
	res, err := d.api.AddBatches(ctx, m)
	if err == nil {
		d.reg.AddedBatches.Publish(registry.AddedBatchLink{MatrixID: m.MatrixID, BatchIDs: m.BatchIDs})
	}
	return fromResult(res, err)
}

func (d *Dispatcher) removeBatch(ctx context.Context, a action.Action) outcome {
	link, ok := d.reg.AddedBatches.TryAcquire()
	if !ok {
		return outcome{err: unavailable("no added batch to remove")}
	}
	return fromResult(d.api.RemoveBatches(ctx, action.BatchMembership{MatrixID: link.MatrixID, BatchIDs: link.BatchIDs}))
}

func (d *Dispatcher) createDynamic(ctx context.Context, a action.Action) outcome {
	spec := a.Request.(action.DynamicMatrixSpec)
	id := d.newID()
	res, err := d.api.CreateMatrix(ctx, action.CreateMatrixRequest{
		MatrixID:        id,
		Type:            action.MatrixDynamic,
		SettlementModel: spec.SettlementModel,
	})
	if err == nil {
		d.reg.DynamicMatrices.Publish(registry.DynamicMatrixRef{MatrixID: id, SettlementModel: spec.SettlementModel})
	}
	return fromResult(res, err)
}

func (d *Dispatcher) getDynamic(ctx context.Context, a action.Action) outcome {
	spec := a.Request.(action.DynamicMatrixSpec)
	now := d.clock.Now()
	out := fromResult(d.api.MatricesByModel(ctx, spec.SettlementModel, now.Add(-d.lookback), now))
	out.sent = encode(spec)
	return out
}

// taken is a matrix removed from a queue for one lifecycle command.
type taken struct {
	id  string
	ref any
	gen registry.Epoch
}

// command runs a matrix lifecycle command. take supplies the matrix; done,
// if set, sees the call's error and decides what to publish.
func (d *Dispatcher) command(cmd transport.MatrixCommand, take func() (taken, bool), done func(taken, error)) func(context.Context, action.Action) outcome {
	return func(ctx context.Context, a action.Action) outcome {
		m, ok := take()
		if !ok {
			return outcome{err: unavailable("no matrix ready to %s", cmd)}
		}
		res, err := d.api.MatrixCommand(ctx, m.id, cmd)
		if done != nil {
			done(m, err)
		}
		return fromResult(res, err)
	}
}

func (d *Dispatcher) takeDynamic() (taken, bool) {
	ref, gen, ok := d.reg.DynamicMatrices.Borrow()
	return taken{id: ref.MatrixID, ref: ref, gen: gen}, ok
}

// returnDynamic puts a dynamic matrix back after a command that leaves it
// open, whatever the outcome. A matrix borrowed before a teardown is dropped.
func (d *Dispatcher) returnDynamic(m taken, _ error) {
	if ref, ok := m.ref.(registry.DynamicMatrixRef); ok {
		d.reg.DynamicMatrices.Return(ref, m.gen)
	}
}

func takeStage(q *registry.Queue[registry.MatrixStateRef]) func() (taken, bool) {
	return func() (taken, bool) {
		ref, ok := q.TryAcquire()
		return taken{id: ref.MatrixID, ref: ref}, ok
	}
}

// publishStage records that a matrix reached stage as a new record.
func publishStage(q *registry.Queue[registry.MatrixStateRef], stage registry.Stage) func(taken, error) {
	return func(m taken, err error) {
		if err != nil {
			return
		}
		q.Publish(registry.MatrixStateRef{MatrixID: m.id, Stage: stage})
	}
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
