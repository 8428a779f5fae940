package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alexmahrou/mcp-server/internal/logging"
	"github.com/alexmahrou/mcp-server/internal/supervise"
)

const (
	writeWait     = 10 * time.Second
	pingPeriod    = 30 * time.Second
	clientBacklog = 16
)

// EventHub fans supervisor status transitions out to websocket clients.
// Publishing never blocks the polling loop; slow clients drop events.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	logger  logging.Logger
}

type hubClient struct {
	conn *websocket.Conn
	send chan supervise.Event
}

// NewEventHub constructs an empty hub.
func NewEventHub(logger logging.Logger) *EventHub {
	return &EventHub{
		clients: make(map[*hubClient]struct{}),
		logger:  logging.OrNop(logger),
	}
}

// Publish delivers an event to every connected client.
func (h *EventHub) Publish(event supervise.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Client is not keeping up; it still gets later events.
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Serve upgrades the request and streams events until the client leaves.
func (h *EventHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	client := &hubClient{conn: conn, send: make(chan supervise.Event, clientBacklog)}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	h.readPump(client)
}

func (h *EventHub) readPump(client *hubClient) {
	defer h.drop(client)
	client.conn.SetReadLimit(512)
	for {
		// Incoming frames are ignored; reading detects disconnects.
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(client *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.drop(client)
	}()
	for {
		select {
		case event, ok := <-client.send:
			if !ok {
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *EventHub) drop(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.conn.Close()
}
