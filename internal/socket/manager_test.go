// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socket

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/model"
	"github.com/jeranaias/relay-tui/internal/state"
)

// stubConn records lifecycle calls without touching the network.
type stubConn struct {
	mu       sync.Mutex
	identity model.ConnIdentity
	token    string
	connects []bool // force flag per attempt
	closed   bool
}

func (c *stubConn) Identity() model.ConnIdentity { return c.identity }

func (c *stubConn) Connect(_ context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, force)
	return nil
}

func (c *stubConn) UpdateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *stubConn) AddChatEventHandler(Registration) *Handle {
	return &Handle{dispose: func() {}}
}

func (c *stubConn) AddChannelEventHandler(Registration) *Handle {
	return &Handle{dispose: func() {}}
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.connects)
}

// stubDialer hands out stubConns and remembers them in order.
type stubDialer struct {
	mu    sync.Mutex
	conns []*stubConn
}

func (d *stubDialer) dial(cfg ConnConfig) Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &stubConn{identity: cfg.Identity, token: cfg.Token}
	d.conns = append(d.conns, c)
	return c
}

func (d *stubDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func permissive() model.TransportOptions {
	return model.TransportOptions{AllowPolling: true, AllowWebsocketUpgrade: true}
}

func testSettings() config.Settings {
	s := config.Default()
	s.Server = "https://a.example"
	s.Token = "t1"
	return s
}

func newTestManager(t *testing.T) (*Manager, *stubDialer, *state.Container[config.Settings], *state.Queue) {
	t.Helper()
	q := state.NewQueue()
	t.Cleanup(q.Close)

	settings := state.New("settings", testSettings(), q)
	d := &stubDialer{}
	m := NewManager(settings, permissive, nil, q, d.dial)
	t.Cleanup(m.Dispose)
	return m, d, settings, q
}

// drain flushes twice: tasks deferred while draining (reconcile scheduling a
// connect) land behind the first flush marker.
func drain(q *state.Queue) {
	q.Flush()
	q.Flush()
}

func TestManager_TokenChangeKeepsInstance(t *testing.T) {
	m, d, settings, q := newTestManager(t)

	m.Reconcile()
	drain(q)
	require.Equal(t, 1, d.count())
	first := d.conns[0]
	assert.Equal(t, 1, first.connectCount())

	settings.Update(func(s config.Settings) config.Settings {
		s.Token = "t2"
		return s
	})
	drain(q)

	assert.Equal(t, 1, d.count(), "token rotation must not dial a new connection")
	assert.Same(t, first, m.Current().(*stubConn))
	assert.Equal(t, "t2", first.token)
	assert.Equal(t, 1, first.connectCount(), "token rotation must not reconnect")
}

func TestManager_ServerChangeRecreates(t *testing.T) {
	m, d, settings, q := newTestManager(t)

	m.Reconcile()
	drain(q)
	first := d.conns[0]

	settings.Update(func(s config.Settings) config.Settings {
		s.Server = "https://b.example"
		return s
	})
	drain(q)

	require.Equal(t, 2, d.count())
	second := d.conns[1]
	assert.True(t, first.closed, "old connection must be torn down")
	assert.NotSame(t, first, second)
	assert.Same(t, second, m.Current().(*stubConn))
	assert.Equal(t, "b.example", second.identity.ServerID)
}

func TestManager_StaleConnectSuppressed(t *testing.T) {
	m, d, settings, q := newTestManager(t)

	// Issue attempt A, then supersede it with B before the queue drains.
	m.Reconcile()
	settings.Update(func(s config.Settings) config.Settings {
		s.Server = "https://b.example"
		return s
	})
	m.Reconcile()
	drain(q)

	require.Equal(t, 2, d.count())
	a, b := d.conns[0], d.conns[1]
	assert.Equal(t, 0, a.connectCount(), "superseded attempt must be a no-op")
	assert.GreaterOrEqual(t, b.connectCount(), 1)
	assert.True(t, a.closed)
}

func TestManager_ReviewerModeTearsDown(t *testing.T) {
	m, d, settings, q := newTestManager(t)

	m.Reconcile()
	drain(q)
	first := d.conns[0]

	settings.Update(func(s config.Settings) config.Settings {
		s.ReviewerMode = true
		return s
	})
	drain(q)

	assert.True(t, first.closed)
	assert.Nil(t, m.Current())
	assert.Equal(t, 1, d.count(), "reviewer mode must not dial")
}

func TestManager_NoServerMeansNoConnection(t *testing.T) {
	q := state.NewQueue()
	defer q.Close()
	s := testSettings()
	s.Server = ""
	settings := state.New("settings", s, q)
	d := &stubDialer{}
	m := NewManager(settings, permissive, nil, q, d.dial)
	defer m.Dispose()

	m.Reconcile()
	drain(q)
	assert.Nil(t, m.Current())
	assert.Equal(t, 0, d.count())
}

func TestManager_OnlineTransitionForcesReconnect(t *testing.T) {
	m, d, _, q := newTestManager(t)

	m.Reconcile()
	drain(q)
	first := d.conns[0]
	require.Equal(t, []bool{false}, first.connects)

	m.onConnectivity(false) // log only
	m.onConnectivity(true)
	drain(q)

	assert.Equal(t, []bool{false, true}, first.connects, "online transition forces a reconnect")
	assert.Equal(t, 1, d.count(), "reconnect reuses the same connection")
}

func TestManager_WebsocketOnlyIdentity(t *testing.T) {
	q := state.NewQueue()
	defer q.Close()
	settings := state.New("settings", testSettings(), q)
	d := &stubDialer{}
	wsOnly := func() model.TransportOptions {
		return model.TransportOptions{AllowPolling: false, AllowWebsocketUpgrade: true}
	}
	m := NewManager(settings, wsOnly, nil, q, d.dial)
	defer m.Dispose()

	m.Reconcile()
	drain(q)
	require.Equal(t, 1, d.count())
	assert.True(t, d.conns[0].identity.WebsocketOnly)
	assert.True(t, d.conns[0].identity.AllowWebsocketUpgrade)
}

func TestManager_DisposeClosesEverything(t *testing.T) {
	m, d, settings, q := newTestManager(t)

	m.Reconcile()
	drain(q)
	first := d.conns[0]

	m.Dispose()
	assert.True(t, first.closed)
	assert.Nil(t, m.Current())

	// Later inputs are ignored.
	settings.Update(func(s config.Settings) config.Settings {
		s.Server = "https://c.example"
		return s
	})
	drain(q)
	assert.Equal(t, 1, d.count())
}
