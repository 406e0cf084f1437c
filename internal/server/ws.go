package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/artcritique/brushup/pkg/notify"
)

// command is a client frame.
type command struct {
	Type           string    `json:"type"`
	NotificationID notify.ID `json:"notification_id"`
}

// handleWebSocket upgrades an authenticated request into a notification
// channel. Anonymous requests are refused before the upgrade.
func (s *Server) handleWebSocket(c *gin.Context) {
	claims, err := s.authenticate(c)
	if err != nil {
		s.log.Debug("WebSocket auth failed", "error", err, "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "authentication_failed",
			"message": err.Error(),
		})
		return
	}

	// gin's writer refuses Hijack once the header is written; accept on the raw writer.
	w := http.ResponseWriter(c.Writer)
	if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = u.Unwrap()
	}
	conn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: len(s.cfg.AllowedOrigins) == 0,
		OriginPatterns:     s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	cl := newClient(s.ctx, s.hub, conn, claims.UserID, rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst))
	s.hub.register(cl)
	s.log.Info("Notification channel opened", "user_id", claims.UserID, "session_id", cl.id, "remote", c.ClientIP())

	ctx := c.Request.Context()
	cl.sendJSON(connectionEstablished(claims.UserID, cl.id))
	if count, err := s.store.UnreadCount(ctx, claims.UserID); err == nil {
		cl.sendJSON(unreadCountMessage(count))
	} else {
		s.log.Error("Failed to count unread notifications", "user_id", claims.UserID, "error", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		cl.writePump()
	}()

	cl.readPump(func(cl *client, data []byte) {
		s.handleCommand(ctx, cl, data)
	})

	cl.cancel()
	s.hub.unregister(cl)
	<-done
	s.log.Info("Notification channel closed", "user_id", claims.UserID, "session_id", cl.id)
}

func (s *Server) handleCommand(ctx context.Context, cl *client, data []byte) {
	var cmd command
	if err := jsonAPI.Unmarshal(data, &cmd); err != nil {
		s.hub.metrics.MessagesReceived.WithLabelValues("invalid").Inc()
		cl.sendJSON(errorMessage("Invalid JSON received"))
		return
	}
	s.hub.metrics.MessagesReceived.WithLabelValues(cmd.Type).Inc()

	switch cmd.Type {
	case notify.TypeGetNotifications:
		list, err := s.store.List(ctx, cl.userID, s.cfg.SnapshotSize)
		if err != nil {
			s.log.Error("Failed to list notifications", "user_id", cl.userID, "error", err)
			cl.sendJSON(errorMessage("Failed to load notifications"))
			return
		}
		cl.sendJSON(notificationsListMessage(list))

	case notify.TypeMarkRead:
		if cmd.NotificationID == 0 {
			cl.sendJSON(errorMessage("notification_id is required"))
			return
		}
		if err := s.markRead(ctx, cl.userID, cmd.NotificationID); err != nil {
			if errors.Is(err, ErrNotFound) {
				cl.sendJSON(errorMessage(fmt.Sprintf("Notification %s not found", cmd.NotificationID)))
				return
			}
			cl.sendJSON(errorMessage("Failed to mark notification as read"))
		}

	case notify.TypeMarkAllRead:
		if err := s.markAllRead(ctx, cl.userID); err != nil {
			cl.sendJSON(errorMessage("Failed to mark notifications as read"))
		}

	default:
		cl.sendJSON(errorMessage(fmt.Sprintf("Unknown message type: %s", cmd.Type)))
	}
}
