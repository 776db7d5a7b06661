package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/photobooth/internal/booth"
)

// DefaultStatusPoll is how often the hub samples the booth status.
const DefaultStatusPoll = 100 * time.Millisecond

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// StatusSource supplies booth snapshots.
type StatusSource interface {
	Status() booth.Status
}

// StatusHub pushes booth status to WebSocket clients. Each client gets the
// current snapshot on connect, then every snapshot that differs from the
// previous push.
type StatusHub struct {
	source   StatusSource
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	last    booth.Status
	hasLast bool

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewStatusHub creates a StatusHub and starts its broadcaster.
func NewStatusHub(source StatusSource, interval time.Duration) *StatusHub {
	if interval <= 0 {
		interval = DefaultStatusPoll
	}
	h := &StatusHub{
		source:   source,
		interval: interval,
		clients:  make(map[*websocket.Conn]bool),
		stopCh:   make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StatusHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "err", err)
		return
	}

	h.mu.Lock()
	err = writeStatus(conn, h.source.Status())
	if err == nil {
		h.clients[conn] = true
	}
	h.mu.Unlock()

	if err != nil {
		conn.Close()
		return
	}

	defer h.remove(conn)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *StatusHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the broadcaster and disconnects every client.
func (h *StatusHub) Close() {
	h.closeOnce.Do(func() {
		close(h.stopCh)

		h.mu.Lock()
		defer h.mu.Unlock()
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
	})
}

func (h *StatusHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// broadcast polls the source and pushes changed snapshots.
func (h *StatusHub) broadcast() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
		}

		status := h.source.Status()

		h.mu.Lock()
		if h.hasLast && status.Equal(h.last) {
			h.mu.Unlock()
			continue
		}
		h.last, h.hasLast = status, true

		for conn := range h.clients {
			if err := writeStatus(conn, status); err != nil {
				slog.Debug("dropping status client", "err", err)
				conn.Close()
				delete(h.clients, conn)
			}
		}
		h.mu.Unlock()
	}
}

func writeStatus(conn *websocket.Conn, s booth.Status) error {
	msg, err := json.Marshal(s)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
