package registry

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity bounds each queue. Publishes past it are dropped.
const DefaultCapacity = 5_000_000

// Epoch identifies the contents of a queue between two wholesale resets.
// Replace and Clear start a new epoch.
type Epoch uint64

// Queue is a concurrency-safe FIFO of artifact records of one kind.
type Queue[T any] struct {
	kind     Kind
	capacity int
	observe  func(Kind, int)

	mu    sync.Mutex
	items []T
	head  int
	epoch Epoch

	dropped atomic.Uint64
}

func newQueue[T any](kind Kind, capacity int, observe func(Kind, int)) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{kind: kind, capacity: capacity, observe: observe}
}

// Kind returns the artifact kind held by the queue.
func (q *Queue[T]) Kind() Kind {
	return q.kind
}

// Publish appends rec to the tail. It reports false when the queue is full
// and the record was dropped.
func (q *Queue[T]) Publish(rec T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.publishLocked(rec)
}

// TryAcquire removes and returns the head record. ok is false when the queue is empty.
func (q *Queue[T]) TryAcquire() (rec T, ok bool) {
	rec, _, ok = q.Borrow()
	return rec, ok
}

// Borrow removes the head record like TryAcquire and also reports the epoch
// it was taken from. Hand the record back with Return.
func (q *Queue[T]) Borrow() (rec T, epoch Epoch, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.lenLocked() == 0 {
		return rec, q.epoch, false
	}
	var zero T
	rec = q.items[q.head]
	q.items[q.head] = zero
	q.head++
	q.compactLocked()
	q.notifyLocked()
	return rec, q.epoch, true
}

// Return puts a borrowed record back at the tail. The record is discarded,
// and Return reports false, when the queue was replaced or cleared since
// the borrow.
func (q *Queue[T]) Return(rec T, epoch Epoch) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if epoch != q.epoch {
		return false
	}
	return q.publishLocked(rec)
}

func (q *Queue[T]) publishLocked(rec T) bool {
	if q.lenLocked() >= q.capacity {
		q.dropped.Add(1)
		return false
	}
	q.items = append(q.items, rec)
	q.notifyLocked()
	return true
}

// Replace empties the queue and publishes recs in order, under one lock so
// no reader observes a partially refilled queue. It returns how many records
// fit under the capacity.
func (q *Queue[T]) Replace(recs []T) int {
	q.mu.Lock()
	keep := len(recs)
	if keep > q.capacity {
		keep = q.capacity
	}
	q.items = make([]T, keep)
	copy(q.items, recs[:keep])
	q.head = 0
	q.epoch++
	q.notifyLocked()
	q.mu.Unlock()

	if dropped := len(recs) - keep; dropped > 0 {
		q.dropped.Add(uint64(dropped))
	}
	return keep
}

// Len returns the number of records currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns how many records were discarded by the capacity bound.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Clear discards every queued record.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.head = 0
	q.epoch++
	q.notifyLocked()
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

// compactLocked reclaims the consumed prefix once it dominates the backing array.
func (q *Queue[T]) compactLocked() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		var zero T
		for i := n; i < len(q.items); i++ {
			q.items[i] = zero
		}
		q.items = q.items[:n]
		q.head = 0
	}
}

// notifyLocked reports the depth while q.mu is held, so observers see
// depths in the order the changes happened. Observers must not call back
// into the queue.
func (q *Queue[T]) notifyLocked() {
	if q.observe != nil {
		q.observe(q.kind, q.lenLocked())
	}
}
