// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jeranaias/relay-tui/internal/model"
)

// ErrConnClosed is returned from operations on a connection that has been
// disposed.
var ErrConnClosed = errors.New("socket: connection closed")

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Registration describes one conversation-scoped event subscription.
type Registration struct {
	ConversationID string
	SessionID      string
	RequireFocus   bool
	Handler        func(ev model.RawEvent, ack model.AckFunc)
}

// Handle disposes one event registration. Safe to dispose more than once.
type Handle struct {
	once    sync.Once
	dispose func()
}

// NewHandle wraps a dispose function. Used by Conn implementations.
func NewHandle(dispose func()) *Handle {
	return &Handle{dispose: dispose}
}

// Dispose removes the registration.
func (h *Handle) Dispose() {
	h.once.Do(h.dispose)
}

// Conn is the realtime connection surface the manager owns and the delta
// router binds to. Implemented by WSConn; tests substitute stubs.
type Conn interface {
	Identity() model.ConnIdentity
	Connect(ctx context.Context, force bool) error
	UpdateToken(token string)
	AddChatEventHandler(reg Registration) *Handle
	AddChannelEventHandler(reg Registration) *Handle
	Close() error
}

// ConnConfig carries everything needed to build one connection.
type ConnConfig struct {
	URL      string
	Token    string
	Identity model.ConnIdentity
}

// Dialer builds a connection from a config. The manager's seam for tests.
type Dialer func(cfg ConnConfig) Conn

// =============================================================================
// WEBSOCKET CONNECTION
// =============================================================================

// wireEvent is the socket frame format, both directions.
type wireEvent struct {
	Channel        string          `json:"channel,omitempty"`
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	AckID          string          `json:"ack_id,omitempty"`
	Token          string          `json:"token,omitempty"`
	ClientID       string          `json:"client_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// WSConn is the gorilla/websocket implementation of Conn.
type WSConn struct {
	cfg ConnConfig

	// clientID identifies this client instance across reconnects of the
	// same connection, so the server can dedupe resubscriptions.
	clientID string

	mu        sync.Mutex
	writeMu   sync.Mutex
	ws        *websocket.Conn
	token     string
	connected bool
	closed    bool
	focused   bool

	nextID  int
	chat    map[int]Registration
	channel map[int]Registration
}

// NewWSConn builds an unconnected websocket connection.
func NewWSConn(cfg ConnConfig) *WSConn {
	return &WSConn{
		cfg:      cfg,
		clientID: uuid.NewString(),
		token:    cfg.Token,
		focused:  true,
		chat:     make(map[int]Registration),
		channel:  make(map[int]Registration),
	}
}

// Identity returns the identity this connection was built for. Immutable.
func (c *WSConn) Identity() model.ConnIdentity {
	return c.cfg.Identity
}

// Connect dials the server's websocket endpoint. A no-op when already
// connected unless force is set, in which case the old transport is dropped
// and redialed.
func (c *WSConn) Connect(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.connected && !force {
		c.mu.Unlock()
		return nil
	}
	old := c.ws
	c.ws = nil
	c.connected = false
	token := c.token
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	endpoint, err := wsEndpoint(c.cfg.URL)
	if err != nil {
		return err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrConnClosed
	}
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(ws)
	go c.pingLoop(ws)

	// Authenticate in-band as well; some deployments strip the dial header
	// at the proxy.
	c.send(wireEvent{Type: "auth", Token: token, ClientID: c.clientID})
	return nil
}

// UpdateToken swaps the auth token without reconnecting. A live connection
// re-authenticates in place with an auth frame.
func (c *WSConn) UpdateToken(token string) {
	c.mu.Lock()
	c.token = token
	live := c.connected && !c.closed
	c.mu.Unlock()

	if live {
		c.send(wireEvent{Type: "auth", Token: token})
	}
}

// SetFocused records whether the client UI is focused. Registrations with
// RequireFocus only receive events while focused.
func (c *WSConn) SetFocused(focused bool) {
	c.mu.Lock()
	c.focused = focused
	c.mu.Unlock()
}

// AddChatEventHandler registers a handler on the direct chat namespace.
func (c *WSConn) AddChatEventHandler(reg Registration) *Handle {
	return c.register(c.chat, reg)
}

// AddChannelEventHandler registers a handler on the broadcast channel
// namespace.
func (c *WSConn) AddChannelEventHandler(reg Registration) *Handle {
	return c.register(c.channel, reg)
}

func (c *WSConn) register(m map[int]Registration, reg Registration) *Handle {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	m[id] = reg
	c.mu.Unlock()

	return &Handle{dispose: func() {
		c.mu.Lock()
		delete(m, id)
		c.mu.Unlock()
	}}
}

// Close disposes the connection permanently.
func (c *WSConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		return ws.Close()
	}
	return nil
}

// =============================================================================
// READ / DISPATCH
// =============================================================================

func (c *WSConn) readLoop(ws *websocket.Conn) {
	for {
		var ev wireEvent
		if err := ws.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			if c.ws == ws {
				c.connected = false
				c.ws = nil
			}
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Printf("socket: read: %v", err)
			}
			return
		}
		c.dispatch(ev)
	}
}

func (c *WSConn) dispatch(ev wireEvent) {
	c.mu.Lock()
	regs := c.chat
	if ev.Channel == string(model.SourceChannel) {
		regs = c.channel
	}
	matched := make([]Registration, 0, 2)
	for _, reg := range regs {
		if reg.ConversationID != "" && reg.ConversationID != ev.ConversationID {
			continue
		}
		if reg.SessionID != "" && ev.SessionID != "" && reg.SessionID != ev.SessionID {
			continue
		}
		if reg.RequireFocus && !c.focused {
			continue
		}
		matched = append(matched, reg)
	}
	c.mu.Unlock()

	raw := model.RawEvent{
		Type:           ev.Type,
		ConversationID: ev.ConversationID,
		SessionID:      ev.SessionID,
		Data:           ev.Data,
	}
	var ack model.AckFunc
	if ev.AckID != "" {
		ackID := ev.AckID
		ack = func(payload any) {
			data, err := json.Marshal(payload)
			if err != nil {
				log.Printf("socket: ack encode: %v", err)
				return
			}
			c.send(wireEvent{Type: "ack", AckID: ackID, Data: data})
		}
	}

	for _, reg := range matched {
		reg.Handler(raw, ack)
	}
}

func (c *WSConn) pingLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		current := c.ws == ws && !c.closed
		c.mu.Unlock()
		if !current {
			return
		}
		if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
			return
		}
	}
}

func (c *WSConn) send(ev wireEvent) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(ev); err != nil {
		log.Printf("socket: write: %v", err)
	}
}

// wsEndpoint converts the server's base URL into its websocket endpoint.
func wsEndpoint(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = "/api/ws"
	return u.String(), nil
}
