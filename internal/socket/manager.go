// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socket

import (
	"context"
	"log"
	"sync"

	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/netmon"
	"github.com/jeranaias/relay-tui/internal/state"
)

// =============================================================================
// CONNECTION MANAGER
// =============================================================================

// Manager owns the single live realtime connection. It watches user settings
// and connectivity, rebuilds the connection when its identity changes, and
// hot-swaps the token otherwise.
type Manager struct {
	settings  *state.Container[config.Settings]
	transport func() model.TransportOptions
	queue     *state.Queue
	dial      Dialer

	// conn publishes the current connection (possibly nil) for observers.
	conn *state.Container[Conn]

	mu         sync.Mutex
	current    Conn
	generation uint64
	lastToken  string
	disposed   bool

	unsubs []func()
}

// NewManager creates the manager and installs its persistent subscriptions.
// transport supplies the current availability policy (read per reconcile,
// not watched). Call Reconcile once after construction to establish the
// initial connection.
func NewManager(
	settings *state.Container[config.Settings],
	transport func() model.TransportOptions,
	monitor *netmon.Monitor,
	q *state.Queue,
	dial Dialer,
) *Manager {
	m := &Manager{
		settings:  settings,
		transport: transport,
		queue:     q,
		dial:      dial,
		conn:      state.New[Conn]("socket.conn", nil, q),
	}

	m.unsubs = append(m.unsubs, settings.Subscribe(func(config.Settings) {
		m.Reconcile()
	}))
	if monitor != nil {
		m.unsubs = append(m.unsubs, monitor.Subscribe(m.onConnectivity))
	}
	return m
}

// Connection exposes the current-connection container for observers such as
// the delta router. The value is nil whenever no connection exists.
func (m *Manager) Connection() *state.Container[Conn] {
	return m.conn
}

// Current returns the live connection, or nil.
func (m *Manager) Current() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reconcile compares the desired connection identity against the live one
// and acts: teardown when no connection should exist, token hot-swap when
// the identity still matches, teardown-and-recreate otherwise.
func (m *Manager) Reconcile() {
	s := m.settings.Get()
	opts := m.transport()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}

	if s.ReviewerMode || s.Server == "" {
		m.teardownLocked()
		m.mu.Unlock()
		m.conn.Set(nil)
		return
	}

	desired := model.ConnIdentity{
		ServerID:              s.EffectiveServerID(),
		WebsocketOnly:         !opts.AllowPolling || s.Transport == config.TransportWebsocket,
		AllowWebsocketUpgrade: opts.AllowWebsocketUpgrade,
	}

	if m.current != nil && m.current.Identity().Equal(desired) {
		cur := m.current
		changed := s.Token != m.lastToken
		m.lastToken = s.Token
		m.mu.Unlock()
		if changed {
			// Token rotation alone never recreates the connection.
			cur.UpdateToken(s.Token)
		}
		return
	}

	m.teardownLocked()
	conn := m.dial(ConnConfig{URL: s.Server, Token: s.Token, Identity: desired})
	m.current = conn
	m.lastToken = s.Token
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	m.conn.Set(conn)
	m.scheduleConnect(conn, gen, false)
}

// scheduleConnect defers the attempt onto the queue. The attempt runs only
// if its generation is still the latest and its target is still the current
// connection; anything else means a newer teardown cycle superseded it.
func (m *Manager) scheduleConnect(conn Conn, gen uint64, force bool) {
	m.queue.Defer(func() {
		m.mu.Lock()
		live := !m.disposed && gen == m.generation && m.current == conn
		m.mu.Unlock()
		if !live {
			return
		}
		if err := conn.Connect(context.Background(), force); err != nil {
			log.Printf("socket: connect: %v", err)
		}
	})
}

// onConnectivity reacts to network transitions. Going offline is logged
// only; the transport notices its own disconnection. Coming back online
// forces a reconnect attempt on the existing connection.
func (m *Manager) onConnectivity(online bool) {
	if !online {
		log.Printf("socket: network offline")
		return
	}

	m.mu.Lock()
	conn := m.current
	gen := m.generation
	disposed := m.disposed
	m.mu.Unlock()
	if disposed {
		return
	}
	if conn == nil {
		m.Reconcile()
		return
	}
	m.scheduleConnect(conn, gen, true)
}

// teardownLocked closes the live connection and invalidates every pending
// deferred connect. Caller holds m.mu.
func (m *Manager) teardownLocked() {
	m.generation++
	if m.current != nil {
		if err := m.current.Close(); err != nil {
			log.Printf("socket: close: %v", err)
		}
		m.current = nil
	}
}

// Dispose tears down the connection and all subscriptions. The manager is
// unusable afterwards.
func (m *Manager) Dispose() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	m.teardownLocked()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	m.conn.Set(nil)
}
