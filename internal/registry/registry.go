// Package registry holds the artifacts produced by successful actions until a
// dependent action consumes them. Each artifact kind has its own FIFO queue.
//
// Records are never mutated in place. A lifecycle transition removes a record
// from one queue and publishes a new record into another.
package registry

// Kind names an artifact queue.
type Kind string

const (
	KindBatch         Kind = "batch"
	KindStaticMatrix  Kind = "static_matrix"
	KindDynamicMatrix Kind = "dynamic_matrix"
	KindAddedBatch    Kind = "added_batch"
	KindClosed        Kind = "closed"
	KindLocked        Kind = "locked"
)

// Kinds lists every artifact kind in a stable order.
var Kinds = []Kind{KindBatch, KindStaticMatrix, KindDynamicMatrix, KindAddedBatch, KindClosed, KindLocked}

// Stage is the matrix lifecycle stage a MatrixStateRef satisfies.
type Stage string

const (
	StageClosed Stage = "closed"
	StageLocked Stage = "locked"
)

type BatchRef struct {
	ID              string
	SettlementModel string
}

type StaticMatrixRef struct {
	MatrixID string
}

type DynamicMatrixRef struct {
	MatrixID        string
	SettlementModel string
}

// AddedBatchLink records batches attached to a static matrix.
type AddedBatchLink struct {
	MatrixID string
	BatchIDs []string
}

type MatrixStateRef struct {
	MatrixID string
	Stage    Stage
}

// Registry is the set of artifact queues shared by every replay worker of
// one session.
type Registry struct {
	Batches         *Queue[BatchRef]
	StaticMatrices  *Queue[StaticMatrixRef]
	DynamicMatrices *Queue[DynamicMatrixRef]
	AddedBatches    *Queue[AddedBatchLink]
	Closed          *Queue[MatrixStateRef]
	Locked          *Queue[MatrixStateRef]
}

type options struct {
	capacity int
	observe  func(Kind, int)
}

// Option configures a Registry.
type Option func(*options)

// WithCapacity sets the per-queue bound. Values <= 0 select DefaultCapacity.
func WithCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithObserver registers fn to receive the depth of a queue after every change.
// fn runs under the queue's lock and must not call into the registry.
func WithObserver(fn func(kind Kind, depth int)) Option {
	return func(o *options) { o.observe = fn }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		Batches:         newQueue[BatchRef](KindBatch, o.capacity, o.observe),
		StaticMatrices:  newQueue[StaticMatrixRef](KindStaticMatrix, o.capacity, o.observe),
		DynamicMatrices: newQueue[DynamicMatrixRef](KindDynamicMatrix, o.capacity, o.observe),
		AddedBatches:    newQueue[AddedBatchLink](KindAddedBatch, o.capacity, o.observe),
		Closed:          newQueue[MatrixStateRef](KindClosed, o.capacity, o.observe),
		Locked:          newQueue[MatrixStateRef](KindLocked, o.capacity, o.observe),
	}
}

// Depths returns the current length of every queue.
func (r *Registry) Depths() map[Kind]int {
	return map[Kind]int{
		KindBatch:         r.Batches.Len(),
		KindStaticMatrix:  r.StaticMatrices.Len(),
		KindDynamicMatrix: r.DynamicMatrices.Len(),
		KindAddedBatch:    r.AddedBatches.Len(),
		KindClosed:        r.Closed.Len(),
		KindLocked:        r.Locked.Len(),
	}
}

// Clear empties every queue. It is safe on a registry that never saw work.
func (r *Registry) Clear() {
	r.Batches.Clear()
	r.StaticMatrices.Clear()
	r.DynamicMatrices.Clear()
	r.AddedBatches.Clear()
	r.Closed.Clear()
	r.Locked.Clear()
}
