package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"github.com/artcritique/brushup/pkg/notify"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// Hub tracks open channels by user.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*client]struct{}
	metrics *Metrics
	log     *log.Logger
}

// NewHub creates an empty hub.
func NewHub(metrics *Metrics, logger *log.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*client]struct{}),
		metrics: metrics,
		log:     logger,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.metrics.ActiveConnections.Inc()
	h.metrics.ConnectionsTotal.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	h.metrics.ActiveConnections.Dec()
}

// SendToUser queues msg on every channel userID has open.
func (h *Hub) SendToUser(userID int64, msg interface{}) {
	data, err := jsonAPI.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		c.queue(data)
	}
}

// Broadcast queues msg on every open channel.
func (h *Hub) Broadcast(msg interface{}) int {
	data, err := jsonAPI.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to encode message", "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		for c := range set {
			c.queue(data)
			n++
		}
	}
	return n
}

// Connections returns the number of open channels.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Shutdown closes every open channel with a going-away status.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			c.cancel()
		}
	}
}

// client is one open notification channel.
type client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	userID  int64
	send    chan []byte
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(ctx context.Context, hub *Hub, conn *websocket.Conn, userID int64, limiter *rate.Limiter) *client {
	ctx, cancel := context.WithCancel(ctx)
	return &client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBufferSize),
		limiter: limiter,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// queue drops the channel when its buffer is full.
func (c *client) queue(data []byte) {
	select {
	case c.send <- data:
		c.hub.metrics.MessagesSent.Inc()
	default:
		c.hub.log.Warn("Send buffer full, dropping channel", "user_id", c.userID, "session_id", c.id)
		c.cancel()
	}
}

func (c *client) sendJSON(msg interface{}) {
	data, err := jsonAPI.Marshal(msg)
	if err != nil {
		c.hub.log.Error("Failed to encode message", "error", err)
		return
	}
	c.queue(data)
}

// writePump owns all writes to the connection.
func (c *client) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusGoingAway, "server closing channel")
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.hub.log.Debug("Write failed", "user_id", c.userID, "error", err)
				c.cancel()
				return
			}
		}
	}
}

// readPump delivers client frames to handle until the channel ends.
func (c *client) readPump(handle func(c *client, data []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				c.hub.log.Debug("Client disconnected", "user_id", c.userID, "status", status)
			} else if c.ctx.Err() == nil {
				c.hub.log.Debug("Read failed", "user_id", c.userID, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.metrics.RateLimited.Inc()
			c.sendJSON(errorMessage("Rate limit exceeded"))
			continue
		}
		handle(c, data)
	}
}

// Wire messages sent by the server.

func connectionEstablished(userID int64, sessionID string) map[string]interface{} {
	return map[string]interface{}{
		"type":       notify.TypeConnectionEstablished,
		"message":    "Connected to notifications",
		"user_id":    userID,
		"session_id": sessionID,
	}
}

func unreadCountMessage(count int) map[string]interface{} {
	return map[string]interface{}{"type": notify.TypeUnreadCount, "count": count}
}

func notificationsListMessage(list []notify.Notification) map[string]interface{} {
	return map[string]interface{}{"type": notify.TypeNotificationsList, "notifications": list}
}

func newNotificationMessage(n notify.Notification) map[string]interface{} {
	return map[string]interface{}{"type": notify.TypeNewNotification, "notification": n}
}

func markedReadMessage(id notify.ID) map[string]interface{} {
	return map[string]interface{}{"type": notify.TypeNotificationMarkedRead, "notification_id": id}
}

func allMarkedReadMessage() map[string]interface{} {
	return map[string]interface{}{"type": notify.TypeAllNotificationsMarkedRead}
}

func errorMessage(msg string) map[string]interface{} {
	return map[string]interface{}{"type": notify.TypeError, "message": msg}
}

func announcementMessage(msg string) map[string]interface{} {
	return map[string]interface{}{"type": notify.TypeSystemAnnouncement, "message": msg}
}
