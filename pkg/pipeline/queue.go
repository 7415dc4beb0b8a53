package pipeline

import "sync"

// BoundedQueue is a thread-safe FIFO with a fixed capacity. When full, Push
// overwrites the oldest entry, so consumers always see the freshest data.
// No operation blocks.
type BoundedQueue[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int
	size     int
	overflow uint64
}

// NewBoundedQueue creates a queue holding at most capacity items
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedQueue[T]{
		items: make([]T, capacity),
	}
}

// Push appends item. It returns true when the oldest entry had to be dropped.
func (q *BoundedQueue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	capacity := len(q.items)
	tail := (q.head + q.size) % capacity

	if q.size == capacity {
		// overwrite oldest
		q.items[q.head] = item
		q.head = (q.head + 1) % capacity
		q.overflow++
		return true
	}

	q.items[tail] = item
	q.size++
	return false
}

// Pop removes and returns the oldest entry. ok is false when the queue is empty.
func (q *BoundedQueue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == 0 {
		return item, false
	}

	var zero T
	item = q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.size--
	return item, true
}

// Len returns the current depth
func (q *BoundedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the capacity
func (q *BoundedQueue[T]) Cap() int {
	return len(q.items)
}

// Overflows returns how many entries were dropped since creation
func (q *BoundedQueue[T]) Overflows() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflow
}

// Snapshot returns a copy of the queued entries, oldest first, without removing them
func (q *BoundedQueue[T]) Snapshot() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.items[(q.head+i)%len(q.items)]
	}
	return out
}

// Drain removes and returns every queued entry, oldest first
func (q *BoundedQueue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, q.size)
	var zero T
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % len(q.items)
		out[i] = q.items[idx]
		q.items[idx] = zero
	}
	q.head = 0
	q.size = 0
	return out
}
