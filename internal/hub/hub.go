// Package hub fans buyback events out to connected WebSocket clients.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-buyback-relay/internal/buyback"
	"solana-buyback-relay/internal/observability"
)

// Config is the static configuration sent to each client on attach.
type Config struct {
	// TokenAddress is the tracked token mint.
	TokenAddress string

	// WalletAddress is the held wallet (actor mode) or watched address
	// (detector mode).
	WalletAddress string
}

// writeTimeout bounds every connection write so a stalled client cannot
// block the broadcast loop while it holds the registry lock.
var writeTimeout = 10 * time.Second

// statsMessage is the totals snapshot sent on attach.
type statsMessage struct {
	Type string `json:"type"`
	buyback.Stats
}

// configMessage follows the snapshot on attach.
type configMessage struct {
	Type          string `json:"type"`
	TokenAddress  string `json:"tokenAddress"`
	WalletAddress string `json:"walletAddress"`
}

// buybackMessage is fanned out once per event.
type buybackMessage struct {
	Type string `json:"type"`
	buyback.Event
}

// Hub maintains the set of connected clients and pushes messages to them.
// Delivery is best-effort and at-most-once: no queueing, no replay for
// clients that attach after an event. A failed write closes and removes
// that client only.
type Hub struct {
	cfg      Config
	stats    func() buyback.Stats
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// New creates a hub. stats supplies the totals snapshot for attach.
func New(cfg Config, stats func() buyback.Stats, log zerolog.Logger) *Hub {
	return &Hub{
		cfg:   cfg,
		stats: stats,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log.With().Str("component", "hub").Logger(),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Compile-time interface check.
var _ buyback.Broadcaster = (*Hub)(nil)

// Handler returns the HTTP handler that upgrades and registers clients.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		h.attach(conn)

		// Read loop: clients send nothing meaningful, but reading
		// surfaces the close frame.
		go func() {
			defer h.Unregister(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// BroadcastEvent fans one event out to every connected client. The totals
// snapshot accompanies the call for symmetry with attach but is not resent;
// clients accumulate from the per-event fields.
func (h *Hub) BroadcastEvent(ev buyback.Event, _ buyback.Stats) {
	payload, err := json.Marshal(buybackMessage{Type: "buyback", Event: ev})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal buyback message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("broadcast write failed, dropping client")
			conn.Close()
			delete(h.clients, conn)
			observability.RecordBroadcastDrop()
			continue
		}
		observability.RecordMessageSent("buyback")
	}
	observability.UpdateConnectedClients(len(h.clients))
}

// Unregister removes a client and closes its connection. Safe to call more
// than once for the same connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()

	conn.Close()
	if present {
		observability.UpdateConnectedClients(n)
		h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client disconnected")
	}
}

// ClientCount returns the number of connected clients, for /status.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// attach registers a client and sends the attach sequence: current totals,
// then static configuration. Registration and snapshot happen under one
// lock hold so no broadcast interleaves before the snapshot. All writes to
// a connection are serialized by h.mu.
func (h *Hub) attach(conn *websocket.Conn) {
	msgs := []interface{}{
		statsMessage{Type: "stats", Stats: h.stats()},
		configMessage{
			Type:          "config",
			TokenAddress:  h.cfg.TokenAddress,
			WalletAddress: h.cfg.WalletAddress,
		},
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)

	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			h.mu.Unlock()
			h.log.Error().Err(err).Msg("marshal snapshot message")
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.mu.Unlock()

	observability.UpdateConnectedClients(n)
	observability.RecordMessageSent("stats")
	observability.RecordMessageSent("config")
	h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client connected")
}
