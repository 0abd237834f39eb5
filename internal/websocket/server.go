package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/yegors/co-gcs/pkg/logger"
)

// Client message types handled by the hub itself
const (
	MessageTypeSubscribe = "subscribe" // Client selects the vehicles it wants events for
	MessageTypeError     = "error"     // Server reports a rejected client message
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data map[string]any) error
}

// ClientFilters represents the active filters for a WebSocket client
type ClientFilters struct {
	SystemIDs map[uint8]bool `json:"system_ids"` // empty means every vehicle
}

// Client represents a WebSocket client
type Client struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
	filters   *ClientFilters
}

// Server represents a WebSocket server
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler // Handler for incoming messages
	done           chan struct{}  // closed when Run returns
}

// NewServer creates a new WebSocket server
func NewServer(logger *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 1024),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		logger: logger.Named("web-socket"),
		done:   make(chan struct{}),
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// Run starts the hub and returns when ctx is done
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")
	defer close(s.done)

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered", Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			s.removeLocked(client)
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered", Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.deliver(message)

		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				s.removeLocked(client)
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return
		}
	}
}

// removeLocked drops a client; s.mu must be held
func (s *Server) removeLocked(client *Client) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	client.mu.Lock()
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	client.mu.Unlock()
}

func (s *Server) deliver(message *Message) {
	s.mu.RLock()
	clientsToRemove := make([]*Client, 0)
	for client := range s.clients {
		client.mu.Lock()
		if client.closed {
			clientsToRemove = append(clientsToRemove, client)
			client.mu.Unlock()
			continue
		}
		client.mu.Unlock()

		if !client.wants(message) {
			continue
		}

		select {
		case client.send <- message:
		default:
			// Channel is full, mark for removal
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	s.mu.RUnlock()

	if len(clientsToRemove) > 0 {
		s.mu.Lock()
		for _, client := range clientsToRemove {
			s.removeLocked(client)
		}
		s.mu.Unlock()
	}
}

// HandleConnection handles a WebSocket connection
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("Handling new WebSocket connection request",
		String("remote_addr", r.RemoteAddr),
		String("user_agent", r.UserAgent()))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			Error(err),
			String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:      conn,
		send:      make(chan *Message, 256),
		server:    s,
		closeChan: make(chan struct{}),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for all connected clients. It never blocks;
// when the hub falls behind the message is dropped.
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	default:
		s.logger.Warn("Broadcast queue full, dropping message", String("message_type", message.Type))
	}
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.done:
		}
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", Error(err))
			}
			return
		}

		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", Error(err))
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			String("type", message.Type),
			String("client", c.conn.RemoteAddr().String()))

		if err := c.server.handle(c, message); err != nil {
			c.server.logger.Warn("Failed to handle WebSocket message",
				Error(err),
				String("type", message.Type))
			c.SendMessage(&Message{
				Type: MessageTypeError,
				Data: map[string]any{"request": message.Type, "error": err.Error()},
			})
		}
	}
}

func (s *Server) handle(c *Client, message Message) error {
	if message.Type == MessageTypeSubscribe {
		filters, err := parseFilters(message.Data)
		if err != nil {
			return err
		}
		c.UpdateFilters(filters)
		return nil
	}
	if s.messageHandler == nil {
		return fmt.Errorf("unsupported message type: %s", message.Type)
	}
	return s.messageHandler.HandleMessage(c, message.Type, message.Data)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.server.logger.Error("Failed to marshal message", Error(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closeChan:
		return
	default:
	}
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// UpdateFilters updates the client's active filters
func (c *Client) UpdateFilters(filters *ClientFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// wants reports whether a broadcast matches the client's vehicle filter.
// Messages without a system id (calibration, hub notices) always pass.
func (c *Client) wants(message *Message) bool {
	c.mu.Lock()
	filters := c.filters
	c.mu.Unlock()

	if filters == nil || len(filters.SystemIDs) == 0 {
		return true
	}
	id, ok := message.Data["system_id"].(uint8)
	if !ok {
		return true
	}
	return filters.SystemIDs[id]
}

// parseFilters reads {"system_ids": [1, 2]} as decoded from JSON
func parseFilters(data map[string]any) (*ClientFilters, error) {
	filters := &ClientFilters{SystemIDs: make(map[uint8]bool)}
	raw, ok := data["system_ids"]
	if !ok || raw == nil {
		return filters, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("system_ids must be a list")
	}
	for _, v := range list {
		n, ok := v.(float64)
		if !ok || n < 1 || n > 255 || n != float64(int(n)) {
			return nil, fmt.Errorf("invalid system id: %v", v)
		}
		filters.SystemIDs[uint8(n)] = true
	}
	return filters, nil
}

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)
