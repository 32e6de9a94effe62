// Package websocket implements the WebSocket gateway (C5): connection
// lifecycle, heartbeat, per-message dispatch, periodic stats push, and
// event fan-out driven by the Subscription Registry (C3) and Event Bus
// (C4).
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/loominal/weft/internal/common/logger"
	"github.com/loominal/weft/internal/events"
	"github.com/loominal/weft/internal/subscription"
)

const statsEvery = 30 * time.Second

// shutdownGrace is the per-connection window after the close frame is
// sent before the Hub forcibly drops the socket.
const shutdownGrace = 5 * time.Second

// StatsProvider produces the periodic aggregate snapshot pushed to
// `stats` subscribers.
type StatsProvider func() any

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub owns every connection for one project.
type Hub struct {
	projectID string
	bus       *events.Bus
	subs      *subscription.Registry
	stats     StatsProvider
	log       *logger.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	unsubscribeBus events.Unsubscribe
}

// NewHub wires a hub to the project's bus and subscription registry.
// statsProvider may be nil if stats push is not wanted (tests).
func NewHub(projectID string, bus *events.Bus, subs *subscription.Registry, stats StatsProvider, log *logger.Logger) *Hub {
	return &Hub{
		projectID:  projectID,
		bus:        bus,
		subs:       subs,
		stats:      stats,
		log:        log.WithFields(zap.String("component", "ws_hub"), zap.String("project_id", projectID)),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Upgrade promotes an HTTP request to a WebSocket connection and
// registers the resulting client. Authentication is expected to have
// already run as gin middleware ahead of this handler (spec.md §7).
func (h *Hub) Upgrade(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), conn, h, h.log)
	h.register <- client

	go client.WritePump()
	client.ReadPump()
}

// Run drives registration, heartbeat, and stats push until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.unsubscribeBus = h.bus.Subscribe(h.onEvent)

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	var statsTicker *time.Ticker
	var statsC <-chan time.Time
	if h.stats != nil {
		statsTicker = time.NewTicker(statsEvery)
		statsC = statsTicker.C
		defer statsTicker.Stop()
	}

	h.log.Info("websocket hub started")
	defer h.log.Info("websocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("connection_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case <-heartbeat.C:
			h.runHeartbeat()

		case <-statsC:
			h.pushStats()
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	delete(h.clients, client.ID)
	h.mu.Unlock()

	if !ok {
		return
	}
	h.subs.UnsubscribeAll(client.ID)
	client.closeSend()
	h.log.Debug("client unregistered", zap.String("connection_id", client.ID))
}

// runHeartbeat implements spec.md §4.5: terminate connections that
// missed the previous ping, ping the rest.
func (h *Hub) runHeartbeat() {
	h.mu.RLock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		if !c.checkAndClearAlive() {
			h.removeClient(c)
			_ = c.conn.Close()
			continue
		}
		if err := c.ping(); err != nil {
			h.removeClient(c)
			_ = c.conn.Close()
		}
	}
}

func (h *Hub) pushStats() {
	if h.stats == nil {
		return
	}
	connIDs := h.subs.StatsSubscribers()
	if len(connIDs) == 0 {
		return
	}

	data, err := json.Marshal(statsFrame{
		Type:      "stats",
		Data:      h.stats(),
		Timestamp: time.Now().UTC(),
		ProjectID: h.projectID,
	})
	if err != nil {
		h.log.Error("failed to marshal stats frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			c.enqueue(data)
		}
	}
}

// onEvent is the Bus listener: derive the topic, ask the Subscription
// Registry who matches, encode once, and fan out the same bytes.
func (h *Hub) onEvent(e *events.Event) {
	topic := e.Type.Topic()
	connIDs := h.subs.Fanout(topic, e)
	if len(connIDs) == 0 {
		return
	}

	data, err := json.Marshal(eventFrame{
		Type:      "event",
		Topic:     topic,
		Event:     string(e.Type),
		Data:      e.Data,
		Timestamp: e.Timestamp,
		ProjectID: e.ProjectID,
	})
	if err != nil {
		h.log.Error("failed to marshal event frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range connIDs {
		if c, ok := h.clients[id]; ok {
			c.enqueue(data)
		}
	}
}

// shutdown sends every connection a server-initiated close frame and
// releases all hub and subscription state.
func (h *Hub) shutdown() {
	if h.unsubscribeBus != nil {
		h.unsubscribeBus()
	}

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		h.subs.UnsubscribeAll(c.ID)
		c.shutdown(shutdownGrace)
	}
}

// ConnectionCount returns the number of currently registered clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
