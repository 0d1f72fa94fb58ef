// Package queue provides the pending-request buffers used by the scheduler.
package queue

import "fmt"

// Buffer holds pending items. The implementation decides which item is taken next.
type Buffer[T any] interface {
	// Push adds an item to the buffer.
	Push(item T)
	// Pop removes and returns the next item. ok is false when the buffer is empty.
	Pop() (item T, ok bool)
	// Drain removes every item and returns them in take order.
	Drain() []T
	// Len returns the number of buffered items.
	Len() int
	// IsEmpty returns true if the buffer holds no items.
	IsEmpty() bool
}

// Policy selects the order in which buffered items are taken.
type Policy uint8

const (
	// FIFO takes the oldest item first.
	FIFO Policy = iota
	// LIFO takes the newest item first.
	LIFO
)

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "queue"
	case LIFO:
		return "stack"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy accepts "queue"/"fifo" and "stack"/"lifo".
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "queue", "fifo", "FIFO", "":
		return FIFO, nil
	case "stack", "lifo", "LIFO":
		return LIFO, nil
	default:
		return FIFO, fmt.Errorf("queue: unknown policy %q", name)
	}
}

// New returns an empty buffer for the policy. Both implementations are safe for
// concurrent use.
func New[T any](p Policy) Buffer[T] {
	if p == LIFO {
		return NewStack[T](16)
	}

	return NewLockFreeQueue[T]()
}
