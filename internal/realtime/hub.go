// Package realtime provides the change-subscription channel: a WebSocket
// hub that pushes per-table insert/update/delete events and notifications
// to connected clients.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nalvarez/comanda/internal/ident"
	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// same-host deployments only
		return true
	},
}

// Envelope wraps every pushed message.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// Event types pushed through the hub.
const (
	EventDataChange   = "data.change"
	EventNotification = "notification"
	EventSyncStarted  = "sync.started"
	EventSyncFinished = "sync.finished"
)

// Client is one connected subscriber.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu     sync.Mutex
	tables map[string]bool // empty set means all tables
}

// subscribed reports whether the client wants events for the table.
func (c *Client) subscribed(table string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tables) == 0 {
		return true
	}
	return c.tables[table]
}

// Hub maintains active client connections and broadcasts envelopes.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan envelopeMsg
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// envelopeMsg carries the wire bytes plus the table for subscription
// filtering; an empty table reaches every client.
type envelopeMsg struct {
	table string
	data  []byte
}

// NewHub creates the hub and starts its dispatch loop.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan envelopeMsg, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			n := len(h.clients)
			h.mu.Unlock()
			logging.Debug("realtime client connected", logging.Fields{"client": client.id, "total": n})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			logging.Debug("realtime client disconnected", logging.Fields{"client": client.id})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if msg.table != "" && !client.subscribed(msg.table) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// send buffer full, drop the connection
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// publish encodes and queues an envelope.
func (h *Hub) publish(table, eventType string, data map[string]any) {
	env := Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	bytes, err := json.Marshal(env)
	if err != nil {
		logging.Error("encode envelope failed", err)
		return
	}
	h.broadcast <- envelopeMsg{table: table, data: bytes}
}

// BroadcastChange pushes one data change event to the table's subscribers.
func (h *Hub) BroadcastChange(table string, op models.OpKind, record models.Record, state string) {
	h.publish(table, EventDataChange, map[string]any{
		"table":  table,
		"op":     string(op),
		"record": record,
		"state":  state,
	})
}

// BroadcastSyncStarted announces the start of a reconciliation pass.
func (h *Hub) BroadcastSyncStarted(pending int) {
	h.publish("", EventSyncStarted, map[string]any{"pending": pending})
}

// BroadcastSyncFinished announces the outcome of a reconciliation pass.
func (h *Hub) BroadcastSyncFinished(replayed, remaining int) {
	h.publish("", EventSyncFinished, map[string]any{
		"replayed":  replayed,
		"remaining": remaining,
	})
}

// BroadcastRaw pushes an arbitrary envelope to every client. The
// notification surface uses it.
func (h *Hub) BroadcastRaw(eventType string, data map[string]any) {
	h.publish("", eventType, data)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request into a hub client connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", err)
		return
	}

	client := &Client{
		id:     ident.NewEnvelopeID(),
		conn:   conn,
		send:   make(chan []byte, 64),
		hub:    h,
		tables: make(map[string]bool),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// subscribeMsg is the control message clients send to narrow their
// per-table subscriptions.
type subscribeMsg struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Table  string `json:"table"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg subscribeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.mu.Lock()
		switch msg.Action {
		case "subscribe":
			if msg.Table != "" {
				c.tables[msg.Table] = true
			}
		case "unsubscribe":
			delete(c.tables, msg.Table)
		}
		c.mu.Unlock()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
