// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package delta turns raw socket events into per-conversation delta streams.
//
// Each subscription key owns exactly one socket registration and one shared
// output stream. The stream survives connection swaps: a persistent watch on
// the connection manager's output rebinds the registration onto whatever
// connection currently exists. The socket registration is held only while
// the stream has listeners.
package delta

import (
	"sync"

	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/socket"
	"github.com/jeranaias/relay-tui/internal/state"
)

// =============================================================================
// STREAM
// =============================================================================

// Stream is the broadcast delta output for one subscription key. All
// listeners on the same key share it.
type Stream struct {
	key   model.SubscriptionKey
	conns *state.Container[socket.Conn]

	mu         sync.Mutex
	conn       socket.Conn
	bound      socket.Conn // connection the live registration targets
	binding    *socket.Handle
	listeners  map[int]func(model.Delta)
	nextID     int
	watchUnsub func()
	disposed   bool
}

// NewStream creates the stream and installs the persistent connection watch.
// The socket registration is established once the first listener subscribes.
func NewStream(key model.SubscriptionKey, conns *state.Container[socket.Conn]) *Stream {
	s := &Stream{
		key:       key,
		conns:     conns,
		listeners: make(map[int]func(model.Delta)),
	}
	cur, unsub := conns.Watch(s.rebind)
	s.mu.Lock()
	s.conn = cur
	s.watchUnsub = unsub
	s.mu.Unlock()
	return s
}

// Key returns the subscription key this stream serves.
func (s *Stream) Key() model.SubscriptionKey { return s.key }

// Subscribe adds a listener and returns its unsubscribe. The first listener
// establishes the socket registration; removing the last one tears it down
// so abandoned views don't hold live registrations.
func (s *Stream) Subscribe(fn func(model.Delta)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	if len(s.listeners) == 1 {
		s.bindLocked()
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
		if len(s.listeners) == 0 {
			s.unbindLocked()
		}
	}
}

// rebind runs on every connection swap, including to nil.
func (s *Stream) rebind(conn socket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.conn = conn
	s.unbindLocked()
	if len(s.listeners) > 0 {
		s.bindLocked()
	}
}

// bindLocked registers on the current connection, dispatching to the
// source-specific registration call. Caller holds s.mu.
func (s *Stream) bindLocked() {
	conn := s.conn
	if conn == nil || s.binding != nil {
		return
	}

	reg := socket.Registration{
		ConversationID: s.key.ConversationID,
		SessionID:      s.key.SessionID,
		RequireFocus:   s.key.RequireFocus,
		Handler: func(ev model.RawEvent, ack model.AckFunc) {
			s.emit(conn, ev, ack)
		},
	}

	switch s.key.Source {
	case model.SourceChannel:
		s.binding = conn.AddChannelEventHandler(reg)
	default:
		s.binding = conn.AddChatEventHandler(reg)
	}
	s.bound = conn
}

func (s *Stream) unbindLocked() {
	if s.binding != nil {
		s.binding.Dispose()
		s.binding = nil
		s.bound = nil
	}
}

// emit normalizes a raw event into a delta and broadcasts it. Events from a
// connection that is no longer the bound one are dropped.
func (s *Stream) emit(from socket.Conn, ev model.RawEvent, ack model.AckFunc) {
	s.mu.Lock()
	if s.disposed || s.bound != from {
		s.mu.Unlock()
		return
	}
	fns := make([]func(model.Delta), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	conversationID := ev.ConversationID
	if conversationID == "" {
		conversationID = s.key.ConversationID
	}
	d := model.Delta{
		Source:         s.key.Source,
		ConversationID: conversationID,
		Event:          ev,
		Ack:            ack,
	}
	for _, fn := range fns {
		fn(d)
	}
}

// Dispose closes the connection watch, drops the socket registration, and
// detaches all listeners.
func (s *Stream) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.unbindLocked()
	s.listeners = make(map[int]func(model.Delta))
	unsub := s.watchUnsub
	s.watchUnsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// =============================================================================
// ROUTER
// =============================================================================

// Router hands out the shared stream for each subscription key.
type Router struct {
	conns *state.Container[socket.Conn]

	mu       sync.Mutex
	streams  map[model.SubscriptionKey]*Stream
	disposed bool
}

// NewRouter creates a router over the manager's connection container.
func NewRouter(conns *state.Container[socket.Conn]) *Router {
	return &Router{
		conns:   conns,
		streams: make(map[model.SubscriptionKey]*Stream),
	}
}

// Stream returns the stream for key, creating it on first use. Every caller
// with the same key shares one stream and one socket registration.
func (r *Router) Stream(key model.SubscriptionKey) *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.streams[key]; ok {
		return s
	}
	s := NewStream(key, r.conns)
	if !r.disposed {
		r.streams[key] = s
	}
	return s
}

// Dispose tears down every stream.
func (r *Router) Dispose() {
	r.mu.Lock()
	r.disposed = true
	streams := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.streams = make(map[model.SubscriptionKey]*Stream)
	r.mu.Unlock()

	for _, s := range streams {
		s.Dispose()
	}
}
