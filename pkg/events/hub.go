package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Message is the envelope for progress events pushed to players. A player may
// have the same quest open on several devices; every socket subscribed to the
// progress id receives the event.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins. Adjust this in production!
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	progressID string
	done       chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, progressID string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 256),
		progressID: progressID,
		done:       make(chan struct{}),
	}
}

// PublishProgress fans an event out to every socket subscribed to the given
// progress. Marshal or delivery failures are logged and dropped; events are
// best-effort and never block the submit path.
func (h *Hub) PublishProgress(progressID string, eventType string, data interface{}) {
	msg := Message{
		Type: eventType,
		Data: data,
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshaling progress event: %v", err)
		return
	}

	h.mu.RLock()
	room := h.rooms[progressID]
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- messageBytes:
		default:
			log.Printf("Send channel full for progress %s; unregistering client", progressID)
			h.unregister <- client
		}
	}
}

// Run listens on the register and unregister channels and updates hub state.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if _, exists := h.rooms[client.progressID]; !exists {
				h.rooms[client.progressID] = make(map[*Client]bool)
			}
			h.rooms[client.progressID][client] = true
			log.Printf("Client subscribed to progress %s", client.progressID)
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				if room, exists := h.rooms[client.progressID]; exists {
					delete(room, client)
					if len(room) == 0 {
						delete(h.rooms, client.progressID)
					}
				}
				delete(h.clients, client)
				close(client.send)
				close(client.done)
				log.Printf("Client unsubscribed from progress %s", client.progressID)
			}
			h.mu.Unlock()
		}
	}
}

// HandleWebSocket upgrades the HTTP connection and subscribes it to a
// progress record's event stream.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	progressID := vars["progressId"]
	if progressID == "" {
		http.Error(w, "Missing progress id", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := NewClient(h, conn, progressID)
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection so pings are answered and closes are seen.
// Subscribers never send application messages.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Unexpected close: %v", err)
			}
			break
		}
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
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Error writing progress event: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
