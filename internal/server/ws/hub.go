// Package ws bridges the Redis price bus to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/predictfi/predict-go/internal/domain"
)

const (
	// writeWait bounds a single write to the connection.
	writeWait = 10 * time.Second

	// pongWait is how long the client has to answer a ping; pingPeriod must
	// stay below it.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps incoming frames; subscription messages are tiny.
	maxMessageSize = 4096

	// sendBufferSize is the per-client outgoing buffer. A client that falls
	// this far behind starts dropping ticks.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are handled by the CORS middleware in front of /ws.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client represents a single WebSocket connection. subs maps a chain id to
// the set of markets the client wants ticks for; an empty set means every
// market on that chain.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[uint64]map[common.Address]bool
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage its
// subscriptions:
//
//	{"action":"subscribe","chain_id":31337,"markets":["0x..."]}
type subscribeMsg struct {
	Action  string   `json:"action"` // "subscribe" or "unsubscribe"
	ChainID uint64   `json:"chain_id"`
	Markets []string `json:"markets"`
}

// Hub manages the connected WebSocket clients and fans price updates from the
// price bus out to every subscribed client.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan domain.PriceUpdate
	register   chan *client
	unregister chan *client
	bus        domain.PriceBus
	chains     []uint64
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a hub that subscribes to the price channels of the given
// chains.
func NewHub(bus domain.PriceBus, chains []uint64, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan domain.PriceUpdate, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		chains:     chains,
		logger:     logger,
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// It handles client registration, unregistration, and tick broadcasting. The
// loop exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, chainID := range h.chains {
		go h.subscribeChain(ctx, chainID)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case update := <-h.broadcast:
			data, err := json.Marshal(map[string]any{
				"type":    "price_update",
				"payload": update,
			})
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if c.wants(update) {
					select {
					case c.send <- data:
					default:
						// Client's send buffer is full; drop the tick.
						h.logger.Warn("ws: dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeChain subscribes to one chain's price channel and forwards ticks
// to the hub's broadcast channel.
func (h *Hub) subscribeChain(ctx context.Context, chainID uint64) {
	updates, err := h.bus.SubscribePrices(ctx, chainID)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to price channel",
			slog.Uint64("chain_id", chainID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to price channel", slog.Uint64("chain_id", chainID))

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				h.logger.Warn("ws: price channel closed",
					slog.Uint64("chain_id", chainID),
				)
				return
			}
			h.broadcast <- update
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. New clients receive every chain's ticks until they
// narrow their subscription.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[uint64]map[common.Address]bool),
	}
	for _, chainID := range h.chains {
		c.subs[chainID] = make(map[common.Address]bool)
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump consumes frames from the connection. The only inbound traffic is
// subscription management; anything that does not parse as one is ignored.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(raw, &sub); err == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the
// client. Subscribing with no markets widens the chain subscription to all
// markets; unsubscribing with no markets drops the chain entirely.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		set, ok := c.subs[msg.ChainID]
		if !ok || len(msg.Markets) == 0 {
			set = make(map[common.Address]bool)
		}
		for _, m := range msg.Markets {
			if common.IsHexAddress(m) {
				set[common.HexToAddress(m)] = true
			}
		}
		c.subs[msg.ChainID] = set

	case "unsubscribe":
		if len(msg.Markets) == 0 {
			delete(c.subs, msg.ChainID)
			return
		}
		set, ok := c.subs[msg.ChainID]
		if !ok {
			return
		}
		for _, m := range msg.Markets {
			if common.IsHexAddress(m) {
				delete(set, common.HexToAddress(m))
			}
		}
	}
}

// sendHello pushes a small JSON envelope so clients can immediately mark the
// connection as healthy even when no ticks are flowing yet.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"chains":         c.hub.chains,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// wants reports whether the client subscribed to the update's chain and
// market. An empty market set matches every market on the chain.
func (c *client) wants(update domain.PriceUpdate) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.subs[update.ChainID]
	if !ok {
		return false
	}
	return len(set) == 0 || set[update.Market]
}

// writePump forwards queued ticks to the connection and keeps it alive with
// pings. A closed send channel means the hub dropped the client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
