package httpapi

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsEvent is the notification frame pushed to connected clients.
type wsEvent struct {
	Event     string `json:"event"`
	DatasetID string `json:"datasetId,omitempty"`
}

// Hub tracks websocket subscribers and pushes dataset-replacement events so
// open dashboards reload without polling.
type Hub struct {
	upgrader websocket.Upgrader
	log      *log.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboard pages are served from arbitrary origins in deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWS upgrades the connection and keeps it registered until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Printf("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Clients never send meaningful frames; the read loop only detects
	// disconnects and answers control frames.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// DatasetReplaced notifies every subscriber that the primary dashboard
// dataset changed. Safe to use as the dashboard manager's OnReplace hook.
func (h *Hub) DatasetReplaced(datasetID string) {
	h.broadcast(wsEvent{Event: "datasetReplaced", DatasetID: datasetID})
}

func (h *Hub) broadcast(event wsEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			h.drop(conn)
		}
	}
}
