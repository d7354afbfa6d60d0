// util/timedqueue.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueClosed  = errors.New("queue closed")
	ErrQueueTimeout = errors.New("queue timeout")
)

// TimedQueue is a priority queue that delivers items at or after an
// associated wall-clock time.  Items whose delivery time has passed are
// returned immediately, in insertion order among equal stamps.  Get blocks
// until the head item comes due, the optional timeout expires, or the
// queue is closed and drained.
type TimedQueue[T any] struct {
	mu     sync.Mutex
	wake   chan struct{}
	items  timedHeap[T]
	seq    int64
	closed bool
}

type timedItem[T any] struct {
	value     T
	deliverAt time.Time
	seq       int64 // FIFO tie-break for equal stamps
}

type timedHeap[T any] []timedItem[T]

func (h timedHeap[T]) Len() int { return len(h) }
func (h timedHeap[T]) Less(i, j int) bool {
	if h[i].deliverAt.Equal(h[j].deliverAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].deliverAt.Before(h[j].deliverAt)
}
func (h timedHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timedHeap[T]) Push(x any)   { *h = append(*h, x.(timedItem[T])) }
func (h *timedHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func NewTimedQueue[T any]() *TimedQueue[T] {
	return &TimedQueue[T]{wake: make(chan struct{}, 1)}
}

// signal wakes one waiter, if any; never blocks.
func (q *TimedQueue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Put inserts an item for delivery at or after the given time.  Put on a
// closed queue returns ErrQueueClosed.
func (q *TimedQueue[T]) Put(value T, deliverAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.seq++
	heap.Push(&q.items, timedItem[T]{value: value, deliverAt: deliverAt, seq: q.seq})
	q.signal()
	return nil
}

// Get returns the next due item.  A zero timeout blocks indefinitely;
// otherwise ErrQueueTimeout is returned if nothing comes due in time.
// After Close, remaining due items are still drained; once the queue is
// empty Get returns ErrQueueClosed.
func (q *TimedQueue[T]) Get(timeout time.Duration) (T, error) {
	var zero T

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		now := time.Now()

		if len(q.items) > 0 && !q.items[0].deliverAt.After(now) {
			it := heap.Pop(&q.items).(timedItem[T])
			return it.value, nil
		}
		if q.closed && len(q.items) == 0 {
			return zero, ErrQueueClosed
		}
		if !deadline.IsZero() && !now.Before(deadline) {
			return zero, ErrQueueTimeout
		}

		// Sleep until the earlier of the head's due time and the caller's
		// deadline, or until a Put or Close wakes us; cap the wait at 50ms
		// so queue state changes are picked up promptly regardless.
		wait := 50 * time.Millisecond
		if len(q.items) > 0 {
			if d := q.items[0].deliverAt.Sub(now); d < wait {
				wait = d
			}
		}
		if !deadline.IsZero() {
			if d := deadline.Sub(now); d < wait {
				wait = d
			}
		}
		if wait < 0 {
			wait = 0
		}

		q.mu.Unlock()
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-q.wake:
			timer.Stop()
		}
		q.mu.Lock()
	}
}

// Close marks the queue closed; pending items remain gettable until
// drained.
func (q *TimedQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

// Len returns the number of items currently queued.
func (q *TimedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
