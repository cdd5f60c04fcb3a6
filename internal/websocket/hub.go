// Package websocket streams conflict lifecycle events to connected clients.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lerian-mcp-conflicts/internal/logging"
	"lerian-mcp-conflicts/pkg/types"
)

// Message types sent to clients besides conflict events
const (
	MessageConnection = "connection"
	MessageConflict   = "conflict"
	MessagePong       = "pong"
)

// Message is the JSON frame written to clients
type Message struct {
	Type      string                 `json:"type"`
	Action    string                 `json:"action,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Event     *types.ConflictEvent   `json:"event,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	ID         string
	Connection *websocket.Conn
	Send       chan Message
	Hub        *Hub

	mu         sync.Mutex
	documentID string // only events for this document are sent when set
	closed     bool
}

// NewClient creates a new WebSocket client
func NewClient(id string, conn *websocket.Conn, hub *Hub, documentID string) *Client {
	return &Client{
		ID:         id,
		Connection: conn,
		Send:       make(chan Message, 256),
		Hub:        hub,
		documentID: documentID,
	}
}

// DocumentID returns the document the client is subscribed to, if any
func (c *Client) DocumentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.documentID
}

func (c *Client) setDocumentID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documentID = id
}

// SafeClose safely closes the client's send channel
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed && c.Send != nil {
		close(c.Send)
		c.closed = true
	}
}

// Hub manages WebSocket connections and broadcasts
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan types.ConflictEvent
	done       chan struct{}
	mutex      sync.RWMutex
	logger     logging.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan types.ConflictEvent, 256),
		done:       make(chan struct{}),
		logger:     logger.WithComponent("websocket-hub"),
	}
}

// Run starts the hub's main loop and blocks until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mutex.Lock()
		for client := range h.clients {
			h.removeClientUnsafe(client)
		}
		h.mutex.Unlock()
		close(h.done)
	}()

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()

			h.logger.Info("WebSocket client registered", "client_id", client.ID, "total", total)

			welcome := Message{
				Type:      MessageConnection,
				Action:    "connected",
				Timestamp: time.Now(),
				Data: map[string]interface{}{
					"client_id":   client.ID,
					"document_id": client.DocumentID(),
					"message":     "Connected to conflict event stream",
				},
			}
			select {
			case client.Send <- welcome:
			default:
				h.removeClient(client)
			}

		case client := <-h.unregister:
			h.removeClient(client)

		case event := <-h.broadcast:
			msg := Message{Type: MessageConflict, Action: event.Action, Timestamp: event.Timestamp, Event: &event}
			h.mutex.Lock()
			for client := range h.clients {
				if !shouldSendToClient(client, &event) {
					continue
				}
				select {
				case client.Send <- msg:
				default:
					// slow consumer
					h.removeClientUnsafe(client)
				}
			}
			h.mutex.Unlock()

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			return
		}
	}
}

// Done is closed once Run has returned and every client was disconnected
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// removeClient safely removes a client from the hub
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeClientUnsafe(client)
}

// removeClientUnsafe removes a client without locking (assumes lock is held)
func (h *Hub) removeClientUnsafe(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.SafeClose()
	if client.Connection != nil {
		if err := client.Connection.Close(); err != nil {
			h.logger.Debug("Error closing client connection", "client_id", client.ID, "error", err)
		}
	}
	h.logger.Info("WebSocket client disconnected", "client_id", client.ID, "total", len(h.clients))
}

func shouldSendToClient(client *Client, event *types.ConflictEvent) bool {
	doc := client.DocumentID()
	return doc == "" || event.DocumentID == "" || doc == event.DocumentID
}

// RegisterClient registers a new client with the hub. It returns false once the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient unregisters a client from the hub
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues a conflict event for broadcast, dropping it when the queue is full
func (h *Hub) Publish(event types.ConflictEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event", "type", string(event.Type), "conflict_id", event.ConflictID)
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Connection.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// the hub closed the channel
				_ = c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Connection.WriteJSON(msg); err != nil {
				c.Hub.logger.Debug("Error writing to WebSocket", "client_id", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// ReadPump reads client subscription messages until the connection fails
func (c *Client) ReadPump(maxMessageSize int64, readTimeout time.Duration) {
	defer func() {
		c.Hub.UnregisterClient(c)
		_ = c.Connection.Close()
	}()

	c.Connection.SetReadLimit(maxMessageSize)
	_ = c.Connection.SetReadDeadline(time.Now().Add(readTimeout))
	c.Connection.SetPongHandler(func(string) error {
		return c.Connection.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg map[string]interface{}
		if err := c.Connection.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket read error", "client_id", c.ID, "error", err)
			}
			return
		}
		_ = c.Connection.SetReadDeadline(time.Now().Add(readTimeout))
		c.handleClientMessage(msg)
	}
}

// handleClientMessage processes subscribe, unsubscribe and ping requests
func (c *Client) handleClientMessage(msg map[string]interface{}) {
	msgType, ok := msg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "subscribe":
		if doc, ok := msg["document_id"].(string); ok {
			c.setDocumentID(doc)
		}
	case "unsubscribe":
		c.setDocumentID("")
	case "ping":
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		select {
		case c.Send <- Message{Type: MessagePong, Timestamp: time.Now()}:
		default:
		}
	}
}
