package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one council progress event relayed to websocket clients.
type Event struct {
	ConversationID string          `json:"conversation_id"`
	Event          json.RawMessage `json:"event"`
}

type client struct {
	conn *websocket.Conn
	// conversation filters events; empty receives every conversation.
	conversation string
}

type Hub struct {
	clients   map[*websocket.Conn]*client
	broadcast chan Event
	mu        sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]*client),
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
				continue
			}

			h.mu.Lock()
			for conn, c := range h.clients {
				if c.conversation != "" && c.conversation != event.ConversationID {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		slog.Warn("websocket broadcast channel full, dropping event")
	}
}

func (h *Hub) Register(conn *websocket.Conn, conversation string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = &client{conn: conn, conversation: conversation}
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin) || origin == "http://"+r.Host
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	s.hub.Register(conn, r.URL.Query().Get("conversation"))
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	// Reads only detect the close; clients do not send anything.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
