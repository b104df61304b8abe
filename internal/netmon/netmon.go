// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package netmon tracks network connectivity and notifies subscribers on
// transitions.
//
// The monitor does not tear anything down when the network drops: the socket
// transport notices its own disconnection. Transitions back online are what
// matter; the socket manager subscribes and forces a reconnect attempt.
package netmon

import (
	"net"
	"sync"
	"time"
)

// =============================================================================
// MONITOR
// =============================================================================

// Monitor holds the current online/offline state with transition callbacks.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)

	stopProbe chan struct{}
	probeOnce sync.Once
}

// New creates a monitor that starts in the online state.
func New() *Monitor {
	return &Monitor{
		online:    true,
		subs:      make(map[int]func(bool)),
		stopProbe: make(chan struct{}),
	}
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records a connectivity state. Subscribers are notified only on
// actual transitions, never on repeated reports of the same state.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	// Callbacks run outside the lock.
	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe registers a transition callback and returns an unsubscribe.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// =============================================================================
// REACHABILITY PROBE
// =============================================================================

// DefaultProbeInterval is how often the background probe checks reachability.
const DefaultProbeInterval = 15 * time.Second

// StartProbe begins probing host (host:port) in the background and feeding
// results into SetOnline. Safe to call once; later calls are no-ops.
func (m *Monitor) StartProbe(host string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m.probeOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.SetOnline(probe(host))
				case <-m.stopProbe:
					return
				}
			}
		}()
	})
}

// Close stops the background probe.
func (m *Monitor) Close() {
	select {
	case <-m.stopProbe:
	default:
		close(m.stopProbe)
	}
}

// probe attempts a short TCP dial to decide reachability.
func probe(host string) bool {
	conn, err := net.DialTimeout("tcp", host, 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
