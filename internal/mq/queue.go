// Package mq implements the bounded single-producer/single-consumer
// channels used between a stream client and its worker: fixed-capacity
// record queues for commands and replies, and a byte ring for audio data.
package mq

import (
	"errors"
	"sync"
)

var (
	// ErrClosed is returned for any operation on a closed queue.
	ErrClosed = errors.New("mq: queue is closed")
	// ErrFull is returned by TryWrite when no slot is available.
	ErrFull = errors.New("mq: queue is full")
	// ErrEmpty is returned by TryRead when no record is available.
	ErrEmpty = errors.New("mq: queue is empty")
)

// Queue is a bounded FIFO of records with blocking and non-blocking
// primitives. It is safe for one producer and one consumer; Close may be
// called from either side and unblocks both.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []T
	head     int
	size     int
	closed   bool
}

// NewQueue returns a queue holding at most capacity records.
// Capacity must be at least 1.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue[T]{buf: make([]T, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Cap returns the queue capacity in records.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Len returns the number of buffered records.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Write blocks until a slot is available or the queue is closed.
func (q *Queue[T]) Write(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size == len(q.buf) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	q.put(v)
	return nil
}

// TryWrite stores v if a slot is free, otherwise returns ErrFull.
func (q *Queue[T]) TryWrite(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.size == len(q.buf) {
		return ErrFull
	}
	q.put(v)
	return nil
}

// Read blocks until a record is available or the queue is closed.
// A close with records still buffered drains them first.
func (q *Queue[T]) Read() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.size == 0 {
		var zero T
		return zero, ErrClosed
	}
	return q.take(), nil
}

// TryRead returns the next record if one is buffered, otherwise ErrEmpty.
func (q *Queue[T]) TryRead() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		var zero T
		if q.closed {
			return zero, ErrClosed
		}
		return zero, ErrEmpty
	}
	return q.take(), nil
}

// Close marks the queue closed and wakes all blocked readers and writers.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// IsClosed reports whether Close has been called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) put(v T) {
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.notEmpty.Signal()
}

func (q *Queue[T]) take() T {
	v := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	q.notFull.Signal()
	return v
}
