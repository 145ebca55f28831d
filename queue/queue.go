// Package queue implements the fixed-capacity ring buffer that carries frames
// between a bus controller and the translator main loop.
//
// A Queue has exactly one producer and one consumer. The producer only moves
// head and the consumer only moves tail; each index is published after the
// slot it guards has been written or read, so no lock is needed. Sharing a
// queue between more than one producer or more than one consumer requires an
// external lock.
package queue

import (
	"sync/atomic"
)

const (
	// FrameQueueSize is the number of slots in a per-bus CAN frame queue.
	FrameQueueSize = 8

	// ByteQueueSize is the number of slots in a byte stream queue.
	ByteQueueSize = 512
)

// Queue is a single-producer/single-consumer ring buffer with size slots, of
// which size-1 are usable: head == tail means empty, and the producer never
// advances head onto tail.
type Queue[T any] struct {
	elements []T
	head     atomic.Uint32
	tail     atomic.Uint32
}

// New creates a queue with the given number of slots. size must be at least 2.
func New[T any](size int) *Queue[T] {
	if size < 2 {
		size = 2
	}
	return &Queue[T]{elements: make([]T, size)}
}

// NewFrameQueue is shorthand for a queue of FrameQueueSize slots.
func NewFrameQueue[T any]() *Queue[T] {
	return New[T](FrameQueueSize)
}

func (q *Queue[T]) next(i uint32) uint32 {
	return (i + 1) % uint32(len(q.elements))
}

// Size returns the number of slots, including the one kept free.
func (q *Queue[T]) Size() int {
	return len(q.elements)
}

// Capacity returns the number of elements the queue can hold.
func (q *Queue[T]) Capacity() int {
	return len(q.elements) - 1
}

// Push appends value. It returns false, without overwriting anything, when
// the queue is full. Producer side only.
func (q *Queue[T]) Push(value T) bool {
	head := q.head.Load()
	next := q.next(head)
	if next == q.tail.Load() {
		return false
	}
	q.elements[head] = value
	q.head.Store(next)
	return true
}

// Pop removes and returns the front element. Callers check Empty first; on
// an empty queue Pop returns the zero value and changes nothing. Consumer
// side only.
func (q *Queue[T]) Pop() T {
	var zero T
	tail := q.tail.Load()
	if tail == q.head.Load() {
		return zero
	}
	value := q.elements[tail]
	q.elements[tail] = zero
	q.tail.Store(q.next(tail))
	return value
}

// Peek returns the front element without removing it. Consumer side only.
func (q *Queue[T]) Peek() T {
	var zero T
	tail := q.tail.Load()
	if tail == q.head.Load() {
		return zero
	}
	return q.elements[tail]
}

// Length returns the number of queued elements.
func (q *Queue[T]) Length() int {
	head := int(q.head.Load())
	tail := int(q.tail.Load())
	if head >= tail {
		return head - tail
	}
	return len(q.elements) - tail + head
}

// Available returns how many more elements can be pushed.
func (q *Queue[T]) Available() int {
	return q.Capacity() - q.Length()
}

// Empty reports whether there is nothing to pop.
func (q *Queue[T]) Empty() bool {
	return q.head.Load() == q.tail.Load()
}

// Full reports whether the next Push would fail.
func (q *Queue[T]) Full() bool {
	return q.next(q.head.Load()) == q.tail.Load()
}

// Snapshot copies the queued elements, front first, into out without
// removing them and returns how many were copied.
func (q *Queue[T]) Snapshot(out []T) int {
	tail := q.tail.Load()
	head := q.head.Load()
	n := 0
	for i := tail; i != head && n < len(out); i = q.next(i) {
		out[n] = q.elements[i]
		n++
	}
	return n
}
