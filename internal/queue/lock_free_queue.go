package queue

import (
	"sync/atomic"
)

type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// LockFreeQueue is a lock-free FIFO buffer (Michael-Scott queue).
type LockFreeQueue[T any] struct {
	head   atomic.Pointer[node[T]]
	tail   atomic.Pointer[node[T]]
	length atomic.Int32
}

var _ Buffer[int] = (*LockFreeQueue[int])(nil)

// NewLockFreeQueue creates an empty LockFreeQueue.
func NewLockFreeQueue[T any]() *LockFreeQueue[T] {
	q := &LockFreeQueue[T]{}
	sentinel := &node[T]{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	return q
}

// Push adds an item to the tail of the queue.
func (q *LockFreeQueue[T]) Push(item T) {
	n := &node[T]{value: item}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}

		if next != nil {
			// tail is lagging, help it forward
			q.tail.CompareAndSwap(tail, next)
			continue
		}

		if tail.next.CompareAndSwap(nil, n) {
			q.tail.CompareAndSwap(tail, n)
			q.length.Add(1)

			return
		}
	}
}

// Pop removes and returns the item at the head of the queue.
func (q *LockFreeQueue[T]) Pop() (T, bool) {
	var zero T
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}

		if head == tail {
			if next == nil {
				return zero, false
			}
			q.tail.CompareAndSwap(tail, next)

			continue
		}

		// read before CAS, another Pop may reuse next as the sentinel
		value := next.value
		if q.head.CompareAndSwap(head, next) {
			q.length.Add(-1)

			return value, true
		}
	}
}

// Drain pops every item in FIFO order.
func (q *LockFreeQueue[T]) Drain() []T {
	items := make([]T, 0, q.Len())
	for {
		item, ok := q.Pop()
		if !ok {
			return items
		}
		items = append(items, item)
	}
}

// Len returns the number of items in the queue.
func (q *LockFreeQueue[T]) Len() int {
	return int(q.length.Load())
}

// IsEmpty returns true if the queue is empty.
func (q *LockFreeQueue[T]) IsEmpty() bool {
	return q.length.Load() == 0
}
