// Package progress streams live optimization progress to WebSocket
// subscribers. Dashboards connect, receive one message per completed
// generation, and a final message when the run ends.
package progress

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yersiniasGhost/berlin-sub000/pkg/optimizer"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// MessageType represents the type of progress message
type MessageType string

const (
	MessageTypeGeneration  MessageType = "generation"
	MessageTypeRunComplete MessageType = "run_complete"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
)

// Message represents a progress stream message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Client represents one WebSocket subscriber
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active subscribers and fans generation reports out to them.
// A slow subscriber whose send buffer fills up is dropped rather than
// allowed to stall the broadcast loop.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	log      zerolog.Logger
	upgrader websocket.Upgrader

	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
}

// NewHub creates a progress hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.With().Str("component", "progress-hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the hub's main loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().
				Int("total_clients", total).
				Msg("Progress subscriber connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info().
				Int("total_clients", total).
				Msg("Progress subscriber disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends the Run loop. Safe to call more than once; connected client
// pumps exit through their own connection teardown.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast sends a typed payload to every subscriber.
func (h *Hub) Broadcast(msgType MessageType, data interface{}) error {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}

	msg := Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      dataBytes,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.broadcast <- msgBytes
	return nil
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request into a progress subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains client messages and answers pings until the peer goes
// away.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Error().Err(err).Msg("WebSocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump pumps hub messages to the peer and keeps the connection alive
// with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.log.Error().Err(err).Msg("Failed to parse client message")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.sendPong()
	default:
		c.hub.log.Debug().
			Str("type", string(msg.Type)).
			Msg("Received client message")
	}
}

func (c *Client) sendPong() {
	msg := Message{
		Type:      MessageTypePong,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{}`),
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case c.send <- msgBytes:
	default:
	}
}

// ============================================================================
// OPTIMIZER OBSERVER
// ============================================================================

// Broadcaster adapts the hub to the optimizer's observer interface so every
// generation report reaches the dashboard stream.
type Broadcaster struct {
	hub *Hub
	log zerolog.Logger
}

// NewBroadcaster wraps a hub as a generation observer.
func NewBroadcaster(hub *Hub, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, log: logger.With().Str("component", "progress").Logger()}
}

// OnGeneration implements optimizer.Observer.
func (b *Broadcaster) OnGeneration(report *optimizer.GenerationReport) {
	if err := b.hub.Broadcast(MessageTypeGeneration, report); err != nil {
		b.log.Warn().Err(err).Int("generation", report.Generation).Msg("Failed to broadcast generation report")
	}
}

// RunComplete publishes the final result summary to subscribers.
func (b *Broadcaster) RunComplete(result *optimizer.RunResult) {
	summary := map[string]interface{}{
		"generations": result.Generations,
		"stopped":     result.Stopped,
		"elites":      len(result.Elites),
	}
	if result.Best != nil {
		summary["best_fitness"] = result.Best.Fitness
		summary["best_id"] = result.Best.Individual.ID.String()
	}
	if err := b.hub.Broadcast(MessageTypeRunComplete, summary); err != nil {
		b.log.Warn().Err(err).Msg("Failed to broadcast run completion")
	}
}
