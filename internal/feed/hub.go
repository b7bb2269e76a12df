package feed

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"locscout/internal/logging"
)

const writeWait = 2 * time.Second

// conn is the part of *websocket.Conn the hub writes through.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// client serializes writes to one connection.
type client struct {
	mu   sync.Mutex
	conn conn
}

// Hub fans scan events out to connected WebSocket clients. A client that
// cannot take a message within writeWait is dropped. Writes go out in
// parallel and outside the hub lock, so one broadcast waits at most writeWait
// however many clients are slow.
type Hub struct {
	mu      sync.Mutex
	clients map[conn]*client
	log     *slog.Logger
}

type Stats struct {
	Clients int `json:"clients"`
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[conn]*client),
		log:     logging.OrDefault(log),
	}
}

func (h *Hub) Add(ws *websocket.Conn) {
	h.add(ws)
}

func (h *Hub) add(c conn) {
	h.mu.Lock()
	h.clients[c] = &client{conn: c}
	h.mu.Unlock()
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.remove(ws)
}

func (h *Hub) remove(c conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	_ = c.Close()
}

// Publish implements ingest.Publisher.
func (h *Hub) Publish(v any) {
	h.BroadcastJSON(v)
}

func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("feed event not encodable", "err", err)
		return
	}

	h.mu.Lock()
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range snapshot {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			c.mu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.TextMessage, b)
			c.mu.Unlock()
			if err != nil {
				h.remove(c.conn)
			}
		}(c)
	}
	wg.Wait()
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Clients: len(h.clients)}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
}
