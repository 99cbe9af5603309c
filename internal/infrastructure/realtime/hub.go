package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"
)

const (
	componentRealtime = "realtime"

	EventStockUpdate = "stock:update"
	EventStockJoin   = "stock:join"
	EventStockLeave  = "stock:leave"
	// StockRoom is the group clients join with EventStockJoin.
	StockRoom = "stock-room"
)

var ErrHubClosed = errors.New("realtime: hub closed")

// Message is the frame exchanged with websocket clients in both directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type StockPayload struct {
	ProductID string `json:"productId"`
	NewStock  int    `json:"newStock"`
}

type Config struct {
	// AllowedOrigins lists accepted Origin headers; empty or "*" accepts any origin.
	AllowedOrigins []string
	// BroadcastGroup scopes stock updates to clients that joined it; empty means every client.
	BroadcastGroup string
}

// Hub tracks connected observers and pushes stock updates to them. Delivery is best
// effort: a client that cannot keep up is disconnected rather than blocking the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	groups  map[string]map[*client]struct{}
	closed  bool

	upgrader websocket.Upgrader
	group    string
	log      observability.Logger
	conns    observability.Counter // realtime_connections_total{event}
}

func NewHub(cfg Config, tel observability.Observability) *Hub {
	if tel == nil {
		tel = observability.Nop()
	}
	h := &Hub{
		clients: make(map[*client]struct{}),
		groups:  make(map[string]map[*client]struct{}),
		group:   cfg.BroadcastGroup,
		log:     tel.Logger().With(observability.F("component", componentRealtime)),
		conns:   tel.Metrics().Counter(observability.MRealtimeConnections),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return slices.Contains(allowed, r.Header.Get("Origin"))
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logctx.FromOr(r.Context(), h.log).Warn("ws_upgrade_failed", observability.F("error", err.Error()))
		return
	}

	c := newClient(uuid.NewString(), h, conn)
	if err := h.register(c); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.conns.Add(1, observability.L("event", "connected"))
	h.log.Info("client_connected",
		observability.F("client_id", c.id),
		observability.F("clients", total),
	)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		for name, members := range h.groups {
			delete(members, c)
			if len(members) == 0 {
				delete(h.groups, name)
			}
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.conns.Add(1, observability.L("event", "disconnected"))
	h.log.Info("client_disconnected",
		observability.F("client_id", c.id),
		observability.F("clients", total),
	)
}

func (h *Hub) join(c *client, group string) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*client]struct{})
		h.groups[group] = members
	}
	_, already := members[c]
	members[c] = struct{}{}
	h.mu.Unlock()

	if already {
		return
	}
	h.conns.Add(1, observability.L("event", "joined"))
	h.log.Info("client_joined", observability.F("client_id", c.id), observability.F("group", group))
}

func (h *Hub) leave(c *client, group string) {
	h.mu.Lock()
	members := h.groups[group]
	_, joined := members[c]
	if joined {
		delete(members, c)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	h.mu.Unlock()

	if !joined {
		return
	}
	h.conns.Add(1, observability.L("event", "left"))
	h.log.Info("client_left", observability.F("client_id", c.id), observability.F("group", group))
}

// Broadcast sends msg to every member of group, or to every client when group is empty.
// Clients connected afterwards never see it.
func (h *Hub) Broadcast(ctx context.Context, group string, msg Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	var targets []*client
	if group == "" {
		targets = make([]*client, 0, len(h.clients))
		for c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		for c := range h.groups[group] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var slow []*client
	for _, c := range targets {
		if !c.enqueue(frame) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		logctx.FromOr(ctx, h.log).Warn("client_too_slow_dropped", observability.F("client_id", c.id))
		h.unregister(c)
	}
	return nil
}

// BroadcastStock pushes a stock:update frame to the configured broadcast group.
func (h *Hub) BroadcastStock(ctx context.Context, e dominv.StockUpdatedEvent) error {
	data, err := json.Marshal(StockPayload{ProductID: e.ProductID, NewStock: e.NewStock})
	if err != nil {
		return err
	}
	return h.Broadcast(ctx, h.group, Message{Event: EventStockUpdate, Data: data})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
