package peer

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one connected browser UI.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of UI clients and pushes the session's attribute
// projection to them.
type Hub struct {
	session  *Session
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// latest is the last broadcast payload, sent to clients as they join.
	latest []byte
	last   map[string]string
}

// NewHub creates a hub for s. Call Run before serving clients.
func NewHub(s *Session, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		session: s,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 1),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	cancel, err := h.session.OnAttributes(h.publish)
	if err != nil {
		return err
	}
	// Unsubscribing goes through the session loop, which may be blocked in
	// publish until done is closed.
	defer func() {
		go cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return ctx.Err()
		case client := <-h.register:
			h.clients[client] = true
			if h.latest != nil {
				client.send <- h.latest
			}
			h.logger.Info("client registered", zap.Int("clients", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("client unregistered", zap.Int("clients", len(h.clients)))
			}
		case message := <-h.broadcast:
			h.latest = message
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// publish runs on the session loop.
func (h *Hub) publish(attrs map[string]string) {
	if h.last != nil && maps.Equal(h.last, attrs) {
		return
	}
	h.last = attrs
	payload, err := json.Marshal(Event{Type: EventAttributes, Attributes: attrs})
	if err != nil {
		h.logger.Error("error encoding attributes", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	}
}

// ServeWS upgrades a UI connection and registers it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump(h)
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var op Op
		if err := json.Unmarshal(message, &op); err != nil {
			h.logger.Warn("error decoding op", zap.Error(err))
			continue
		}
		if err := op.apply(h.session); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			h.logger.Warn("error applying op", zap.String("action", op.Action), zap.Error(err))
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
