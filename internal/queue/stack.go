package queue

import "sync"

// Stack is a mutex guarded LIFO buffer.
type Stack[T any] struct {
	mu    sync.Mutex
	items []T
}

var _ Buffer[int] = (*Stack[int])(nil)

// NewStack creates an empty stack with room for prealloc items.
func NewStack[T any](prealloc int) *Stack[T] {
	return &Stack[T]{items: make([]T, 0, prealloc)}
}

// Push adds an item on top of the stack.
func (s *Stack[T]) Push(item T) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
}

// Pop removes and returns the top item.
func (s *Stack[T]) Pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	n := len(s.items)
	if n == 0 {
		return zero, false
	}

	item := s.items[n-1]
	s.items[n-1] = zero
	s.items = s.items[:n-1]

	return item, true
}

// Drain removes every item, newest first.
func (s *Stack[T]) Drain() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, len(s.items))
	for i, item := range s.items {
		out[len(s.items)-1-i] = item
	}
	clear(s.items)
	s.items = s.items[:0]

	return out
}

// Len returns the number of items on the stack.
func (s *Stack[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// IsEmpty returns true if the stack is empty.
func (s *Stack[T]) IsEmpty() bool {
	return s.Len() == 0
}
