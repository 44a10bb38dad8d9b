package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/chachabrian/fleet-booking/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP layer
	},
}

// Client represents a WebSocket client
type Client struct {
	UserID string
	Role   models.Role
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *Hub
}

// Hub maintains the set of active clients and routes booking events to them
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	instanceID string
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		instanceID: uuid.NewString(),
	}
}

// InstanceID identifies this hub among the instances sharing Redis.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Run serves registrations until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.WithFields(log.Fields{"userId": client.UserID, "role": client.Role}).Info("WebSocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			log.WithField("userId", client.UserID).Info("WebSocket client disconnected")

		case <-ctx.Done():
			close(h.done)
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// WebSocketMessage is the envelope written to clients
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Publish delivers the event to the booking's owner, its assigned driver and
// every connected fleet manager.
func (h *Hub) Publish(_ context.Context, event BookingEvent) error {
	data, err := json.Marshal(WebSocketMessage{Type: string(event.Type), Data: event})
	if err != nil {
		return err
	}
	h.deliver(event.Booking, data)
	return nil
}

func (h *Hub) deliver(b models.Booking, message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if !isRecipient(client, b) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			log.WithField("userId", client.UserID).Warn("WebSocket send buffer full, dropping booking event")
		}
	}
}

func isRecipient(c *Client, b models.Booking) bool {
	switch {
	case c.Role == models.RoleFleetManager || c.Role == models.RoleAdmin:
		return true
	case c.UserID == b.UserID:
		return true
	case c.Role == models.RoleDriver && b.AssignedDriverID != nil && *b.AssignedDriverID == c.UserID:
		return true
	}
	return false
}

// ListenRedis forwards events published by any instance to local clients until
// ctx is done.
func (h *Hub) ListenRedis(ctx context.Context, client *redis.Client) {
	sub := client.Subscribe(ctx, BookingUpdatesChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRedisMessage(msg.Payload)
		}
	}
}

func (h *Hub) handleRedisMessage(payload string) {
	var event BookingEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Warnf("Discarding malformed booking update: %v", err)
		return
	}
	if event.Origin == h.instanceID {
		return
	}
	data, err := json.Marshal(WebSocketMessage{Type: string(event.Type), Data: event})
	if err != nil {
		return
	}
	h.deliver(event.Booking, data)
}

// HandleWebSocket upgrades the request and registers the caller with the hub
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, actor models.Actor) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		UserID: actor.ID,
		Role:   actor.Role,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		Hub:    hub,
	}

	select {
	case client.Hub.register <- client:
	case <-client.Hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for the connection closing. Clients change bookings
// over HTTP.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Warnf("WebSocket write error: %v", err)
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
