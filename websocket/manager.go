// Package websocket keeps live connections per user and delivers
// notification events to them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secondserve/middleware"
	"secondserve/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

type Manager struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

type Client struct {
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	manager *Manager
}

var _ notify.Sink = (*Manager)(nil)

// NewManager accepts upgrades from the given origins; "*" allows any.
func NewManager(logger *zap.Logger, allowedOrigins []string) *Manager {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	_, allowAll := allowed["*"]

	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if allowAll || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Start owns registration until ctx is cancelled, then drops every client.
func (m *Manager) Start(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for _, set := range m.clients {
				for c := range set {
					close(c.send)
				}
			}
			m.clients = make(map[string]map[*Client]struct{})
			m.mu.Unlock()
			return

		case c := <-m.register:
			m.mu.Lock()
			if m.clients[c.userID] == nil {
				m.clients[c.userID] = make(map[*Client]struct{})
			}
			m.clients[c.userID][c] = struct{}{}
			m.mu.Unlock()
			m.logger.Debug("websocket client registered", zap.String("userId", c.userID), zap.Int("connected", m.ConnectedUsers()))

		case c := <-m.unregister:
			m.remove(c)
		}
	}
}

func (m *Manager) remove(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(m.clients, c.userID)
	}
	m.logger.Debug("websocket client unregistered", zap.String("userId", c.userID))
}

// drop hands a client to the registration loop without blocking delivery.
func (m *Manager) drop(c *Client) {
	go func() {
		select {
		case m.unregister <- c:
		case <-m.done:
		}
	}()
}

// Deliver implements notify.Sink. Broadcast events go to every connection,
// user events to that user's connections only. A connection whose buffer
// is full is disconnected instead of stalling the shard.
func (m *Manager) Deliver(_ context.Context, ev notify.Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if ev.Channel == notify.BroadcastKey {
		for _, set := range m.clients {
			m.sendAll(set, msg)
		}
		return nil
	}
	userID, ok := notify.UserFromChannel(ev.Channel)
	if !ok {
		return nil
	}
	m.sendAll(m.clients[userID.Hex()], msg)
	return nil
}

// sendAll requires m.mu held for reading.
func (m *Manager) sendAll(set map[*Client]struct{}, msg []byte) {
	for c := range set {
		select {
		case c.send <- msg:
		default:
			m.logger.Warn("websocket client too slow, disconnecting", zap.String("userId", c.userID))
			m.drop(c)
		}
	}
}

// ConnectedUsers counts users with at least one open connection.
func (m *Manager) ConnectedUsers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Handler upgrades an authenticated request. It runs behind
// middleware.JWTAuthMiddleware, which accepts the token as ?token=.
func (m *Manager) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(middleware.ContextUserID)
		conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			m.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			conn:    conn,
			userID:  userID,
			send:    make(chan []byte, sendBuffer),
			manager: m,
		}
		welcome, _ := json.Marshal(map[string]interface{}{
			"type": "connected",
			"payload": map[string]interface{}{
				"userId": userID,
				"time":   time.Now().Unix(),
			},
		})
		client.send <- welcome

		select {
		case m.register <- client:
		case <-m.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.manager.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Debug("websocket read error", zap.String("userId", c.userID), zap.Error(err))
			}
			return
		}

		var data struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}
		// Clients only ever talk to keep the connection alive.
		if data.Type == "ping" {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":    "pong",
				"payload": map[string]interface{}{"time": time.Now().Unix()},
			})
			c.trySend(pong)
		}
	}
}

// trySend skips clients that were already unregistered.
func (c *Client) trySend(msg []byte) {
	c.manager.mu.RLock()
	defer c.manager.mu.RUnlock()
	if _, ok := c.manager.clients[c.userID][c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
