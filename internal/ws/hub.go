package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 16
)

type frame struct {
	kind int
	data []byte
}

// client is one connected viewer.
type client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan frame
}

// Hub is a broadcast channel to every connected WebSocket viewer. Delivery
// is best-effort: a viewer whose buffer is full is disconnected rather than
// slowing the sender down.
type Hub struct {
	name     string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub; name only appears in logs.
func NewHub(name string) *Hub {
	return &Hub{
		name: name,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// pages are served from the device itself under whatever name
			// the client used to reach it
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("hub", h.name).Msg("WebSocket upgrade failed")
		return
	}
	c := &client{id: uuid.New(), hub: h, conn: conn, send: make(chan frame, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	log.Debug().
		Str("hub", h.name).
		Str("viewer", c.id.String()).
		Str("remote", r.RemoteAddr).
		Int("viewers", n).
		Msg("Viewer connected")

	go c.writePump()
	go c.readPump()
}

// TextAll sends a text message to every viewer and returns how many took
// it.
func (h *Hub) TextAll(data []byte) int {
	return h.broadcast(frame{kind: websocket.TextMessage, data: data})
}

// BinaryAll sends a binary message to every viewer and returns how many
// took it.
func (h *Hub) BinaryAll(data []byte) int {
	return h.broadcast(frame{kind: websocket.BinaryMessage, data: data})
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every viewer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(f frame) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for c := range h.clients {
		select {
		case c.send <- f:
			delivered++
		default:
			log.Warn().Str("hub", h.name).Str("viewer", c.id.String()).Msg("Viewer too slow, dropping")
			delete(h.clients, c)
			close(c.send)
		}
	}
	return delivered
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		log.Debug().Str("hub", h.name).Str("viewer", c.id.String()).Msg("Viewer disconnected")
	}
}

// readPump discards inbound messages and notices disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("viewer", c.id.String()).Msg("WebSocket read error")
			}
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
