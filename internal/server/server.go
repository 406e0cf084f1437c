// Package server is a development implementation of the BrushUp
// notifications server: the live channel at /ws/notifications/ and the REST
// endpoints the CLI falls back to.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artcritique/brushup/pkg/notify"
)

// Config configures a Server.
type Config struct {
	Addr      string
	JWTSecret []byte
	// AllowedOrigins are host patterns accepted on upgrade. Empty accepts any
	// origin.
	AllowedOrigins []string

	// SnapshotSize is how many records get_notifications returns.
	SnapshotSize int
	// ListLimit caps GET /api/notifications/.
	ListLimit int

	// RateLimit is the sustained client commands per second per channel.
	RateLimit float64
	RateBurst int

	Logger *log.Logger
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8000",
		SnapshotSize: 20,
		ListLimit:    100,
		RateLimit:    10,
		RateBurst:    20,
	}
}

// Server serves the notifications API.
type Server struct {
	cfg      Config
	store    *Store
	hub      *Hub
	metrics  *Metrics
	registry *prometheus.Registry
	router   *gin.Engine
	log      *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server over store.
func New(cfg Config, store *Store) (*Server, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	def := DefaultConfig()
	if cfg.SnapshotSize <= 0 {
		cfg.SnapshotSize = def.SnapshotSize
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = def.ListLimit
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}

	registry := newRegistry()
	metrics := NewMetrics(registry)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		store:    store,
		hub:      NewHub(metrics, cfg.Logger),
		metrics:  metrics,
		registry: registry,
		log:      cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the channel registry.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) setupRoutes() {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.metrics.requestMetrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "notifyd",
			"connections": s.hub.Connections(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET(notify.DefaultPath, s.handleWebSocket)

	api := r.Group("/api/notifications")
	api.Use(s.requireAuth())
	{
		api.GET("/", s.handleList)
		api.POST("/", s.requireStaff(), s.handleCreate)
		api.POST("/mark_all_read/", s.handleMarkAllRead)
		api.POST("/broadcast/", s.requireStaff(), s.handleBroadcast)
		api.POST("/:id/mark_read/", s.handleMarkRead)
	}

	s.router = r
}

func (s *Server) handleList(c *gin.Context) {
	userID := claimsFrom(c).UserID
	list, err := s.store.List(c.Request.Context(), userID, s.cfg.ListLimit)
	if err != nil {
		s.log.Error("Failed to list notifications", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to list notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "results": list})
}

func (s *Server) handleCreate(c *gin.Context) {
	var req NewNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	n, err := s.Publish(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to create notification"})
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	id, err := notify.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	if err := s.markRead(c.Request.Context(), claimsFrom(c).UserID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to mark notification as read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	if err := s.markAllRead(c.Request.Context(), claimsFrom(c).UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to mark notifications as read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	n := s.hub.Broadcast(announcementMessage(req.Message))
	s.log.Info("Broadcast system announcement", "recipients", n)
	c.JSON(http.StatusOK, gin.H{"recipients": n})
}

// Publish stores a notification and pushes it to the recipient's open
// channels followed by the new unread count.
func (s *Server) Publish(ctx context.Context, in NewNotification) (notify.Notification, error) {
	n, err := s.store.Create(ctx, in)
	if err != nil {
		s.log.Error("Failed to create notification", "user_id", in.UserID, "error", err)
		return notify.Notification{}, err
	}
	s.metrics.NotificationsCreated.Inc()
	s.log.Debug("Created notification", "user_id", in.UserID, "notification_id", n.ID)

	s.hub.SendToUser(in.UserID, newNotificationMessage(n))
	s.pushUnreadCount(ctx, in.UserID)
	return n, nil
}

func (s *Server) markRead(ctx context.Context, userID int64, id notify.ID) error {
	if err := s.store.MarkRead(ctx, userID, id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("Failed to mark notification read", "user_id", userID, "notification_id", id, "error", err)
		}
		return err
	}
	s.hub.SendToUser(userID, markedReadMessage(id))
	s.pushUnreadCount(ctx, userID)
	return nil
}

func (s *Server) markAllRead(ctx context.Context, userID int64) error {
	changed, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		s.log.Error("Failed to mark all notifications read", "user_id", userID, "error", err)
		return err
	}
	s.log.Debug("Marked notifications read", "user_id", userID, "count", changed)
	s.hub.SendToUser(userID, allMarkedReadMessage())
	s.hub.SendToUser(userID, unreadCountMessage(0))
	return nil
}

func (s *Server) pushUnreadCount(ctx context.Context, userID int64) {
	count, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		s.log.Error("Failed to count unread notifications", "user_id", userID, "error", err)
		return
	}
	s.hub.SendToUser(userID, unreadCountMessage(count))
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting notifyd", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down notifyd")
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close ends every open channel.
func (s *Server) Close() {
	s.cancel()
	s.hub.Shutdown()
}
