// Package queue implements a fixed-capacity circular queue of frame sequence numbers.
package queue

import (
	"github.com/pkg/errors"
)

var (
	// ErrFull is returned by Enqueue when the queue holds Cap elements.
	// The rejected element is dropped.
	ErrFull = errors.New("queue is full")

	// ErrEmpty is returned when reading from or dequeuing an empty queue.
	ErrEmpty = errors.New("queue is empty")

	// ErrCapacity is returned by New for a capacity smaller than one.
	ErrCapacity = errors.New("queue capacity must be at least 1")
)

// Queue is a ring buffer of sequence numbers. It never resizes and is not
// safe for concurrent use; each ARQ role owns its own instance.
type Queue struct {
	elements []uint8
	size     int
	front    int
	rear     int
}

// New creates a Queue able to hold capacity sequence numbers.
func New(capacity int) (*Queue, error) {
	if capacity < 1 {
		return nil, ErrCapacity
	}
	return &Queue{
		elements: make([]uint8, capacity),
		rear:     capacity - 1,
	}, nil
}

// Enqueue appends v at the rear.
func (q *Queue) Enqueue(v uint8) error {
	if q.size == len(q.elements) {
		return ErrFull
	}
	q.rear = (q.rear + 1) % len(q.elements)
	q.elements[q.rear] = v
	q.size++
	return nil
}

// Dequeue removes the front element.
func (q *Queue) Dequeue() error {
	if q.size == 0 {
		return ErrEmpty
	}
	q.front = (q.front + 1) % len(q.elements)
	q.size--
	return nil
}

// Front returns the oldest element.
func (q *Queue) Front() (uint8, error) {
	if q.size == 0 {
		return 0, ErrEmpty
	}
	return q.elements[q.front], nil
}

// Rear returns the newest element.
func (q *Queue) Rear() (uint8, error) {
	if q.size == 0 {
		return 0, ErrEmpty
	}
	return q.elements[q.rear], nil
}

// Clear empties the queue. Clearing an empty queue is a no-op.
func (q *Queue) Clear() {
	q.size = 0
	q.front = 0
	q.rear = len(q.elements) - 1
}

// Size returns the number of queued elements.
func (q *Queue) Size() int { return q.size }

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return len(q.elements) }

// IsFull reports whether Enqueue would fail.
func (q *Queue) IsFull() bool { return q.size == len(q.elements) }

// Contains reports whether v is currently queued.
func (q *Queue) Contains(v uint8) bool {
	for i := 0; i < q.size; i++ {
		if q.elements[(q.front+i)%len(q.elements)] == v {
			return true
		}
	}
	return false
}

// Values returns the queued elements ordered from front to rear.
func (q *Queue) Values() []uint8 {
	out := make([]uint8, q.size)
	for i := range out {
		out[i] = q.elements[(q.front+i)%len(q.elements)]
	}
	return out
}
