package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/api"
	"github.com/KimADR/smt-finalV2-sub001/internal/auth"
	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/store"
)

// Server is the notification API used in development and tests. It plays
// the treasury backend's role: it owns the notification store and emits a
// push event whenever an alert raises a notification.
type Server struct {
	store  store.Backend
	signer *auth.Signer
	hub    *Hub
	log    *zap.Logger
}

// New creates a server.
func New(st store.Backend, signer *auth.Signer, hub *Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	return &Server{store: st, signer: signer, hub: hub, log: log}
}

// Hub returns the server's event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "treasury-notifyd",
		})
	})

	protected := router.Group("/api")
	protected.Use(authMiddleware(s.signer))
	{
		protected.GET("/me", s.me)

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", s.listNotifications)
			notifications.GET("/events", s.events)
			notifications.GET("/ws", s.websocket)
			notifications.PATCH("/:id/read", s.markRead)
			notifications.DELETE("/:id", s.deleteNotification)
		}

		protected.POST("/alerts", requireRole(model.RoleAdmin, model.RoleAgent), s.createAlert)
	}

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, principalFrom(c))
}

func (s *Server) listNotifications(c *gin.Context) {
	notifications, err := s.store.ListNotifications(c.Request.Context(), principalFrom(c))
	if err != nil {
		s.internalError(c, "listing notifications", err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

func (s *Server) markRead(c *gin.Context) {
	id, ok := s.ownedID(c)
	if !ok {
		return
	}
	if err := s.store.MarkNotificationRead(c.Request.Context(), id); err != nil {
		s.storeError(c, "marking notification read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteNotification(c *gin.Context) {
	id, ok := s.ownedID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteNotification(c.Request.Context(), id); err != nil {
		s.storeError(c, "deleting notification", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createAlert(c *gin.Context) {
	var req api.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	n := model.Notification{
		OwnerUserID: req.UserID,
		Title:       req.Title,
		Message:     req.Message,
	}
	if req.Alert.ID != 0 {
		alert := req.Alert
		if alert.CreatedAt.IsZero() {
			alert.CreatedAt = time.Now().UTC()
		}
		n.Alert = &alert
	}

	created, err := s.store.CreateNotification(c.Request.Context(), n)
	if err != nil {
		s.internalError(c, "creating notification", err)
		return
	}

	ev := s.hub.Publish(c.Request.Context(), model.PushEvent{
		Type:      model.EventNotificationCreated,
		UserID:    created.OwnerUserID,
		Title:     created.Title,
		Message:   created.Message,
		Alert:     created.Alert,
		CreatedAt: created.CreatedAt,
	})
	s.log.Info("notification created",
		zap.Int64("id", created.ID),
		zap.Int64("user_id", created.OwnerUserID),
		zap.String("event_id", ev.ID),
	)

	c.JSON(http.StatusCreated, created)
}

func (s *Server) events(c *gin.Context) {
	after, err := strconv.ParseInt(c.DefaultQuery("after", "-1"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "after must be an integer"})
		return
	}

	events, cursor := s.hub.Since(principalFrom(c).UserID, after)
	c.JSON(http.StatusOK, api.EventPage{Cursor: cursor, Events: events})
}

func (s *Server) websocket(c *gin.Context) {
	s.hub.ServeWS(c.Writer, c.Request, principalFrom(c).UserID)
}

// ownedID parses the :id parameter and checks the notification belongs to
// the caller. Other users' notifications are reported as missing.
func (s *Server) ownedID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return 0, false
	}

	n, err := s.store.GetNotification(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, "loading notification", err)
		return 0, false
	}
	if n.OwnerUserID != principalFrom(c).UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": store.ErrNotFound.Error()})
		return 0, false
	}
	return id, true
}

func (s *Server) storeError(c *gin.Context, action string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": store.ErrNotFound.Error()})
		return
	}
	s.internalError(c, action, err)
}

func (s *Server) internalError(c *gin.Context, action string, err error) {
	s.log.Error(action, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
