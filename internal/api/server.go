// Package api exposes conversations and the parent dashboard over HTTP and
// WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abhisek/studybuddy/internal/gateway"
	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/observability"
	"github.com/abhisek/studybuddy/internal/reports"
)

// Parents is the read side of the monitor used by the parent endpoints.
type Parents interface {
	reports.Source
	GetNotifications(ctx context.Context, childID string, limit int) ([]monitor.Notification, error)
	GetUrgentAlerts(ctx context.Context, childID string) ([]monitor.Notification, error)
	PruneUrgentAlerts(ctx context.Context, childID string, before time.Time) (int, error)
	GenerateConversationSummary(ctx context.Context, childID string, date time.Time) (monitor.ConversationSummary, error)
}

// Archiver stores weekly reports.
type Archiver interface {
	Archive(ctx context.Context, r reports.WeeklyReport) (reports.Archived, error)
}

// Deps wires the server. Archiver and Metrics are optional.
type Deps struct {
	Manager  *gateway.Manager
	Parents  Parents
	Archiver Archiver
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	manager  *gateway.Manager
	parents  Parents
	archiver Archiver
	metrics  *observability.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// Now is the clock used for default dates. Tests replace it.
	Now func() time.Time
}

// New creates a Server. Manager and Parents are required.
func New(deps Deps) (*Server, error) {
	if deps.Manager == nil || deps.Parents == nil {
		return nil, errors.New("api: manager and parents are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Server{
		manager:  deps.Manager,
		parents:  deps.Parents,
		archiver: deps.Archiver,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Named("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
		Now: time.Now,
	}, nil
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/v1")
	{
		conv := v1.Group("/conversations")
		conv.POST("", s.openConversation)
		conv.DELETE("/:id", s.closeConversation)
		conv.POST("/:id/messages", s.sendMessage)
		conv.GET("/:id/history", s.getHistory)
		conv.DELETE("/:id/history", s.clearHistory)
		conv.PUT("/:id/lesson", s.updateLesson)
		conv.DELETE("/:id/lesson", s.clearLesson)
		conv.PUT("/:id/progress", s.updateProgress)
		conv.GET("/:id/suggestions", s.getSuggestions)
		conv.GET("/:id/ws", s.streamChat)

		child := v1.Group("/parents/children/:id")
		child.GET("/notifications", s.getNotifications)
		child.GET("/alerts", s.getAlerts)
		child.DELETE("/alerts", s.pruneAlerts)
		child.GET("/incidents", s.getIncidents)
		child.GET("/summary", s.getSummary)
		child.GET("/weekly", s.getWeekly)
		child.GET("/dashboard", s.getDashboard)
		child.POST("/reports/weekly", s.archiveWeekly)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	ok(c, gin.H{
		"status":        "ok",
		"conversations": s.manager.Len(),
		"archive":       s.archiver != nil,
	})
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": message, "data": nil})
}

// requestLogger logs one line per request. Bodies are never logged since
// they carry children's messages.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
