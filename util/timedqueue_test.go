// util/timedqueue_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTimedQueuePastItemsImmediate(t *testing.T) {
	q := NewTimedQueue[int]()
	now := time.Now()

	// Items already due come back right away, FIFO among equal stamps.
	stamp := now.Add(-time.Second)
	for i := 0; i < 5; i++ {
		if err := q.Put(i, stamp); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		v, err := q.Get(time.Second)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if v != i {
			t.Errorf("got %d, expected %d", v, i)
		}
	}
}

func TestTimedQueueOrder(t *testing.T) {
	q := NewTimedQueue[string]()
	now := time.Now()

	// Inserted out of order; must come back in key order.
	q.Put("c", now.Add(300*time.Millisecond))
	q.Put("a", now.Add(100*time.Millisecond))
	q.Put("b", now.Add(200*time.Millisecond))

	var got []string
	for i := 0; i < 3; i++ {
		v, err := q.Get(time.Second)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got = append(got, v)
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("delivery order %v", got)
	}
}

func TestTimedQueueDeliveryTime(t *testing.T) {
	q := NewTimedQueue[int]()
	due := time.Now().Add(200 * time.Millisecond)
	q.Put(1, due)

	if _, err := q.Get(time.Second); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if early := due.Sub(time.Now()); early > 0 {
		t.Errorf("delivered %v early", early)
	}
}

func TestTimedQueueTimeout(t *testing.T) {
	q := NewTimedQueue[int]()

	start := time.Now()
	_, err := q.Get(100 * time.Millisecond)
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("got %v, expected ErrQueueTimeout", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Errorf("timed out early")
	}

	// A not-yet-due item must not defeat the timeout.
	q.Put(1, time.Now().Add(time.Hour))
	if _, err := q.Get(50 * time.Millisecond); !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("got %v, expected ErrQueueTimeout", err)
	}
}

func TestTimedQueueClose(t *testing.T) {
	q := NewTimedQueue[int]()
	q.Put(1, time.Now().Add(-time.Second))
	q.Close()

	// Due items drain after Close; then the queue reports closed.
	if v, err := q.Get(time.Second); err != nil || v != 1 {
		t.Fatalf("got %d, %v", v, err)
	}
	if _, err := q.Get(time.Second); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("got %v, expected ErrQueueClosed", err)
	}
	if err := q.Put(2, time.Now()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Put after Close: got %v, expected ErrQueueClosed", err)
	}
}

func TestTimedQueueConcurrent(t *testing.T) {
	q := NewTimedQueue[int]()
	const n = 100
	now := time.Now()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Put(i, now.Add(time.Duration(i)*time.Millisecond))
		}
	}()

	var got []int
	for len(got) < n {
		v, err := q.Get(2 * time.Second)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got = append(got, v)
	}
	wg.Wait()

	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Errorf("out of order delivery: %d after %d", got[i], got[i-1])
		}
	}
}
