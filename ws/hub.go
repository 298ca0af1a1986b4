package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vnkhanh/course-tracker-backend/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub keeps the open notification sockets per user. A user may hold several
// connections (tabs, devices).
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     zerolog.Logger
}

type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// Event is the envelope pushed to clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     logger.Component("ws"),
	}
}

// Register tracks conn for userID and starts its write pump. The caller runs
// ReadPump on the same goroutine that owns the HTTP request.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Client {
	client := &Client{UserID: userID, Conn: conn, Send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; ok {
		close(client.Send)
		delete(conns, client)
	}
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
}

// SendToUser pushes an event to every connection of userID. Slow clients drop
// messages instead of blocking the sender.
func (h *Hub) SendToUser(userID string, event Event) {
	data, ok := h.encode(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.Send <- data:
		default:
			h.log.Warn().Str("user_id", userID).Msg("ws send buffer full, dropping message")
		}
	}
}

// Greet sends event to a single connection only.
func (h *Hub) Greet(client *Client, event Event) {
	data, ok := h.encode(event)
	if !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Hub) encode(event Event) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("marshal ws event")
		return nil, false
	}
	return data, true
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Users: len(h.clients)}
	for _, conns := range h.clients {
		s.Connections += len(conns)
	}
	return s
}

// ReadPump drains incoming frames until the peer goes away, then unregisters.
func (h *Hub) ReadPump(client *Client) {
	defer h.Unregister(client)

	client.Conn.SetReadLimit(512)
	_ = client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
