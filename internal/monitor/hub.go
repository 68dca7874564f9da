package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"voice-agent-server/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Event is one call lifecycle notification pushed to monitoring clients.
type Event struct {
	CallID       string    `json:"call_id,omitempty"`
	ConnectionID string    `json:"connection_id"`
	State        string    `json:"state"`
	Detail       string    `json:"detail,omitempty"`
	At           time.Time `json:"at"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans call lifecycle events out to connected websocket clients.
// Broadcast never blocks call handling: slow clients are dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *observability.Logger
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

func NewHub(logger *observability.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

// HandleMonitor upgrades the request to a websocket and streams call events
// until the client disconnects.
func (h *Hub) HandleMonitor(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "failed to upgrade monitor connection", err)
		return
	}

	cl := &client{conn: conn, send: make(chan Event, 16)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.logger.Info(ctx, "monitor client connected")

	go h.writeLoop(cl)
	h.readLoop(ctx, cl)
}

// Broadcast queues the event for every connected client. Clients whose send
// buffer is full are disconnected rather than stalling the caller.
func (h *Hub) Broadcast(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- event:
		default:
			h.logger.Warn(ctx, "dropping slow monitor client")
			delete(h.clients, cl)
			close(cl.send)
		}
	}
}

// ClientCount reports the number of connected monitor clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(cl *client) {
	defer cl.conn.Close()
	for event := range cl.send {
		if err := cl.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// readLoop drains client frames so pings are answered and disconnects are
// noticed promptly.
func (h *Hub) readLoop(ctx context.Context, cl *client) {
	defer h.remove(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			h.logger.Info(ctx, "monitor client disconnected")
			return
		}
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}
