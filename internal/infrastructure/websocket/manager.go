package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"medchat/internal/infrastructure/ratelimit"
	"medchat/internal/usecase"
	"medchat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Services are the chat operations reachable over a socket.
type Services struct {
	Conversations *usecase.ConversationUseCase
	Messages      *usecase.MessageUseCase
	Presence      *usecase.PresenceUseCase
	RateLimiter   *ratelimit.RateLimiter
}

// Client is one socket of a user. A user may hold several.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]*usecase.Subscription
}

func NewClient(parent context.Context, userID string, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*usecase.Subscription),
	}
}

// Context is cancelled when the client disconnects.
func (c *Client) Context() context.Context {
	return c.ctx
}

// track replaces any subscription already registered under key.
func (c *Client) track(key string, sub *usecase.Subscription) {
	c.mu.Lock()
	old := c.subs[key]
	c.subs[key] = sub
	c.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}
}

func (c *Client) untrack(key string) bool {
	c.mu.Lock()
	sub, ok := c.subs[key]
	delete(c.subs, key)
	c.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
	return ok
}

func (c *Client) subscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Client) close() {
	c.cancel()
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*usecase.Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// enqueue never blocks. A client that cannot keep up is disconnected.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.Send <- frame:
		return true
	default:
		logger.Warn("WebSocket: Client %s of user %s send buffer full, closing connection", c.ID, c.UserID)
		c.Conn.Close()
		return false
	}
}

// Manager tracks every connected socket and routes frames to the chat
// services.
type Manager struct {
	services   Services
	clients    map[string]map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	ctx        context.Context
	mutex      sync.RWMutex
}

func NewManager(services Services) *Manager {
	return &Manager{
		services:   services,
		clients:    make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		ctx:        context.Background(),
	}
}

// Context is the manager's lifetime; client contexts derive from it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Start runs the registration loop until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	m.ctx = ctx
	go func() {
		for {
			select {
			case client := <-m.Register:
				first := m.add(client)
				logger.Info("WebSocket: Client %s registered for user %s", client.ID, client.UserID)
				if first && m.services.Presence != nil {
					m.services.Presence.SetOnline(ctx, client.UserID, true)
				}

			case client := <-m.Unregister:
				removed, last := m.remove(client)
				if !removed {
					continue
				}
				client.close()
				logger.Info("WebSocket: Client %s unregistered for user %s", client.ID, client.UserID)
				if last && m.services.Presence != nil {
					m.services.Presence.SetOnline(ctx, client.UserID, false)
				}

			case <-ctx.Done():
				close(m.done)
				m.closeAll()
				return
			}
		}
	}()
}

func (m *Manager) add(client *Client) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		conns = make(map[string]*Client)
		m.clients[client.UserID] = conns
	}
	conns[client.ID] = client
	return len(conns) == 1
}

func (m *Manager) remove(client *Client) (removed, last bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	conns, ok := m.clients[client.UserID]
	if !ok {
		return false, false
	}
	if _, ok := conns[client.ID]; !ok {
		return false, false
	}
	delete(conns, client.ID)
	if len(conns) == 0 {
		delete(m.clients, client.UserID)
		return true, true
	}
	return true, false
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	all := m.clients
	m.clients = make(map[string]map[string]*Client)
	m.mutex.Unlock()
	for _, conns := range all {
		for _, c := range conns {
			c.close()
			c.Conn.Close()
		}
	}
}

// Connect registers client. It returns false once the manager has stopped.
func (m *Manager) Connect(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) disconnect(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
	}
}

// IsConnected reports whether the user has at least one open socket.
func (m *Manager) IsConnected(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID]) > 0
}

// ReadPump reads frames until the connection fails, then unregisters.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.disconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: Read error for client %s: %v", c.ID, err)
			}
			return
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump drains Send and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket: Write error for client %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
