package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/giwa-chain/giwa-walletd/audit"
	"github.com/giwa-chain/giwa-walletd/common/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (for development)
	},
}

// WSEventType event type
type WSEventType string

const (
	EventSecurity WSEventType = "security_event"
)

// WSMessage WebSocket message structure
type WSMessage struct {
	Event WSEventType `json:"event"`
	Data  interface{} `json:"data"`
}

// WSHub manages client connections and pushes audit events to every
// connected security review client.
type WSHub struct {
	clients    map[*WSClient]bool
	broadcast  chan WSMessage
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
}

// WSClient WebSocket client
type WSClient struct {
	hub  *WSHub
	conn *websocket.Conn
	send chan []byte
}

// NewWSHub creates new Hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		broadcast:  make(chan WSMessage, 64),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
}

// Run processes register/unregister/broadcast until the process exits.
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug("WebSocket client registered, total: ", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("Failed to encode ws message: ", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow client, drop the message
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastSecurityEvent pushes an audit event to all clients. Non-blocking:
// if the hub is saturated the event is dropped rather than stalling the
// wallet operation.
func (h *WSHub) BroadcastSecurityEvent(event audit.Event) {
	select {
	case h.broadcast <- WSMessage{Event: EventSecurity, Data: event}:
	default:
	}
}

// Sink adapts the hub to the audit.Sink interface.
func (h *WSHub) Sink() audit.Sink {
	return audit.SinkFunc(func(event audit.Event) error {
		h.BroadcastSecurityEvent(event)
		return nil
	})
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the connection and attaches it to the hub.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Failed to upgrade websocket: ", err)
			return
		}

		client := &WSClient{
			hub:  hub,
			conn: conn,
			send: make(chan []byte, 16),
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
