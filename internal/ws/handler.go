package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/live-queue-system/pkg/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // In production, implement proper origin checking
	},
}

// Frame is what subscribed clients receive: the delta plus a per-event
// monotonic sequence number, so a client can detect dropped or reordered
// frames and resync over the REST API.
type Frame struct {
	Seq   uint64       `json:"seq"`
	Delta events.Delta `json:"delta"`
}

type Handler struct {
	// Map of eventID -> map of connectionID -> *websocket.Conn
	subscribers map[string]map[string]*websocket.Conn
	seq         map[string]uint64
	mu          sync.RWMutex
	bus         *events.KafkaClient
}

func NewHandler(bus *events.KafkaClient) *Handler {
	return &Handler{
		subscribers: make(map[string]map[string]*websocket.Conn),
		seq:         make(map[string]uint64),
		bus:         bus,
	}
}

// Run consumes deltas from the bus and fans them out until ctx ends. Start
// it once; deltas for one event arrive in publish order because they share a
// partition key.
func (h *Handler) Run(ctx context.Context) {
	err := h.bus.ConsumeDeltas(ctx, func(delta events.Delta) error {
		h.broadcast(delta)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("Delta consumer stopped: %v", err)
	}
}

// HandleWebSocket subscribes the caller to an event's delta stream. The
// socket is read-only for state: mutations go through the REST API.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	eventID := c.Param("id")
	if eventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event id is required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	// One entry per socket: a user with several tabs open holds several
	// subscriptions, so the key must not be the user id.
	connID := uuid.New().String()
	h.subscribe(eventID, connID, conn)
	defer h.unsubscribe(eventID, connID)

	// Drain control messages until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

func (h *Handler) subscribe(eventID, connID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscribers[eventID]; !exists {
		h.subscribers[eventID] = make(map[string]*websocket.Conn)
	}
	h.subscribers[eventID][connID] = conn
}

func (h *Handler) unsubscribe(eventID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, exists := h.subscribers[eventID]; exists {
		if conn, exists := subs[connID]; exists {
			conn.Close()
			delete(subs, connID)
		}
		if len(subs) == 0 {
			delete(h.subscribers, eventID)
		}
	}
}

func (h *Handler) broadcast(delta events.Delta) {
	h.mu.Lock()
	h.seq[delta.EventID]++
	frame := Frame{Seq: h.seq[delta.EventID], Delta: delta}
	h.mu.Unlock()

	frameJSON, err := json.Marshal(frame)
	if err != nil {
		log.Printf("Failed to marshal frame: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.subscribers[delta.EventID] {
		if err := conn.WriteMessage(websocket.TextMessage, frameJSON); err != nil {
			log.Printf("Failed to send frame: %v", err)
		}
	}
}
