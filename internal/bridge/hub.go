// Package bridge exposes the client core to a local presentation layer:
// envelopes and state over a websocket, and a small HTTP control API.
package bridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Raikerian/go-rtc-translate/internal/envelope"
	"github.com/Raikerian/go-rtc-translate/internal/metrics"
	"github.com/Raikerian/go-rtc-translate/internal/turn"
)

const (
	sendBuffer   = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxReadBytes = 4096

	stateEventName = "State"
)

// Subscriber gates envelope production.
type Subscriber interface {
	Subscribe()
	Unsubscribe()
}

// StateSource provides the conversation view and mute flag.
type StateSource interface {
	Snapshot() turn.Snapshot
}

type stateMessage struct {
	Event string        `json:"event"`
	State turn.Snapshot `json:"state"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
	done chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans envelopes and state snapshots out to websocket clients. Every
// connected client holds one envelope subscription.
type Hub struct {
	logger   *zap.Logger
	metrics  *metrics.Metrics
	subs     Subscriber
	state    StateSource
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub with no clients.
func NewHub(logger *zap.Logger, m *metrics.Metrics, subs Subscriber, state StateSource) *Hub {
	return &Hub{
		logger:  logger.Named("hub"),
		metrics: m,
		subs:    subs,
		state:   state,
		upgrader: websocket.Upgrader{
			// the bridge listens on loopback for a local UI
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// HandleEnvelope implements envelope.Sink. Input envelopes are sent empty
// while the microphone is muted.
func (h *Hub) HandleEnvelope(ev envelope.Event) {
	if ev.Name == envelope.InputEventName && h.state.Snapshot().Muted {
		ev.Envelope = []float64{}
		ev.RMS = nil
	}

	h.broadcastJSON(ev)
}

// HandleSnapshot implements turn.Listener.
func (h *Hub) HandleSnapshot(s turn.Snapshot) {
	h.broadcastJSON(stateMessage{Event: stateEventName, State: s})
}

func (h *Hub) broadcastJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode bridge message", zap.Error(err))

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.metrics.BridgeDroppedEvents.Inc()
		}
	}
}

// ServeWS upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))

		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}

	if data, err := json.Marshal(stateMessage{Event: stateEventName, State: h.state.Snapshot()}); err == nil {
		c.send <- data
	}

	h.register(c)
	go h.writePump(c)
	h.readPump(c)
	h.unregister(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
		_ = c.conn.Close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.subs.Subscribe()
	h.metrics.BridgeClients.Set(float64(n))
	h.logger.Info("Bridge client connected", zap.String("remote", c.conn.RemoteAddr().String()), zap.Int("clients", n))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()

		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	h.subs.Unsubscribe()
	h.metrics.BridgeClients.Set(float64(n))
	h.logger.Info("Bridge client disconnected", zap.Int("clients", n))
}

// readPump discards inbound frames; it exists to observe close and pongs.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
