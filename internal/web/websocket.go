package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sorcerai/storm-mcp/internal/pipeline"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one websocket frame. Swarm scopes it for filtered clients and
// is not sent.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	Swarm   string `json:"-"`
}

// Hub fans events out to websocket clients. A client may follow a single
// swarm; an empty filter receives everything.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]string
	broadcast chan Event
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan Event, 256),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				slog.Warn("encode websocket event", "type", event.Type, "error", err)
				continue
			}
			h.send(event.Swarm, data)
		}
	}
}

func (h *Hub) send(swarmID string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client, filter := range h.clients {
		if filter != "" && filter != swarmID {
			continue
		}
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		slog.Warn("websocket broadcast channel full, dropping event", "type", event.Type)
	}
}

// Publish implements pipeline.Events.
func (h *Hub) Publish(ev pipeline.Event) {
	h.Broadcast(Event{Type: string(ev.Type), Payload: ev, Swarm: ev.SwarmID})
}

// Register adds a client following swarmID, or every swarm when empty.
func (h *Hub) Register(conn *websocket.Conn, swarmID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = swarmID
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// handleWebSocket streams events. ?swarm=<id> limits the stream to one swarm.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	s.hub.Register(conn, r.URL.Query().Get("swarm"))
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	// Clients never send; reads only detect the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
