// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import (
	"sync"
)

// =============================================================================
// CONTAINER
// =============================================================================

// Watchable is the access-mode-agnostic face of a container, used to declare
// upstream dependencies of derived containers without knowing their value type.
type Watchable interface {
	// subscribeChange registers a change signal and returns an unsubscribe.
	subscribeChange(fn func()) func()
}

// Container is a named state holder with subscribe semantics.
//
// Created once per process and torn down only at process shutdown; there is
// no automatic scope-based disposal.
type Container[T any] struct {
	name  string
	queue *Queue

	mu        sync.Mutex
	value     T
	nextID    int
	listeners map[int]func(T)
}

// New creates a container with an initial value. Notifications are dispatched
// through q; a nil q makes notifications synchronous (tests only).
func New[T any](name string, initial T, q *Queue) *Container[T] {
	return &Container[T]{
		name:      name,
		queue:     q,
		value:     initial,
		listeners: make(map[int]func(T)),
	}
}

// Name returns the container's name, used in logs.
func (c *Container[T]) Name() string { return c.name }

// Get returns the current value without subscribing ("read" access).
func (c *Container[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores a new value and notifies subscribers. Listeners run on the
// queue's goroutine, after the caller's stack has unwound.
func (c *Container[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	fns := make([]func(T), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	c.dispatch(fns, v)
}

// Update applies fn to the current value atomically and notifies subscribers.
func (c *Container[T]) Update(fn func(T) T) {
	c.mu.Lock()
	c.value = fn(c.value)
	v := c.value
	fns := make([]func(T), 0, len(c.listeners))
	for _, l := range c.listeners {
		fns = append(fns, l)
	}
	c.mu.Unlock()

	c.dispatch(fns, v)
}

// Subscribe registers a listener for future changes and returns an
// unsubscribe function. The listener does not receive the current value.
func (c *Container[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Watch returns the current value and a subscription for subsequent changes
// ("watch" access).
func (c *Container[T]) Watch(fn func(T)) (T, func()) {
	c.mu.Lock()
	v := c.value
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	unsub := func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
	return v, unsub
}

func (c *Container[T]) dispatch(fns []func(T), v T) {
	if len(fns) == 0 {
		return
	}
	if c.queue == nil {
		for _, fn := range fns {
			fn(v)
		}
		return
	}
	c.queue.Defer(func() {
		for _, fn := range fns {
			fn(v)
		}
	})
}

// subscribeChange implements Watchable.
func (c *Container[T]) subscribeChange(fn func()) func() {
	return c.Subscribe(func(T) { fn() })
}

// =============================================================================
// DERIVED CONTAINERS
// =============================================================================

// Derive creates a container whose value is recomputed from compute() whenever
// one of the declared upstream dependencies changes. Dependencies accessed
// inside compute without being declared here are "read" access: their changes
// do not trigger recomputation.
func Derive[T any](name string, q *Queue, compute func() T, deps ...Watchable) *Container[T] {
	c := New(name, compute(), q)
	for _, dep := range deps {
		dep.subscribeChange(func() {
			c.Set(compute())
		})
	}
	return c
}
