// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import (
	"sync"
)

// =============================================================================
// MICROTASK QUEUE
// =============================================================================

// Queue is a FIFO deferred-task queue drained on a single goroutine.
//
// Tasks enqueued while another task is running execute strictly after it
// returns, which is what keeps container notification chains from mutating
// state re-entrantly.
type Queue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewQueue creates a queue and starts its drain goroutine.
func NewQueue() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.drain()
	return q
}

// Defer enqueues fn to run after all previously enqueued tasks.
// Enqueuing on a closed queue is a no-op.
func (q *Queue) Defer(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every task enqueued before the call has run.
// Intended for tests and orderly shutdown.
func (q *Queue) Flush() {
	var wg sync.WaitGroup
	wg.Add(1)
	q.Defer(wg.Done)

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	wg.Wait()
}

// Close stops the drain goroutine. Pending tasks are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.tasks = nil
	q.mu.Unlock()
	close(q.done)
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		var fn func()
		if len(q.tasks) > 0 {
			fn = q.tasks[0]
			q.tasks = q.tasks[1:]
		}
		q.mu.Unlock()

		if fn != nil {
			fn()
			continue
		}

		select {
		case <-q.wake:
		case <-q.done:
			return
		}
	}
}
