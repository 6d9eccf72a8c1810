// Package api exposes the investigation engine over HTTP: a JSON API for
// starting and steering investigations, newline-framed event streaming, and
// a WebSocket endpoint for dashboard subscriptions.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/events"
	"github.com/shipsight/shipsight/pkg/journal"
	"github.com/shipsight/shipsight/pkg/supervisor"
)

// Server is the HTTP surface over the supervisor. The journal is optional;
// replay endpoints return 503 when it is absent.
type Server struct {
	sup         *supervisor.Supervisor
	journal     *journal.Journal
	connManager *events.ConnectionManager
	cfg         *config.ServerConfig
	logger      *slog.Logger
}

// NewServer creates the API server. journal may be nil.
func NewServer(cfg *config.ServerConfig, sup *supervisor.Supervisor, jrnl *journal.Journal, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sup:         sup,
		journal:     jrnl,
		connManager: events.NewConnectionManager(sup, cfg.WriteTimeout),
		cfg:         cfg,
		logger:      logger.With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.healthHandler)
	r.GET("/ws", s.wsHandler)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.healthHandler)
		v1.POST("/investigations", s.startInvestigationHandler)
		v1.GET("/investigations/:id", s.getInvestigationHandler)
		v1.GET("/investigations/:id/stream", s.streamInvestigationHandler)
		v1.GET("/investigations/:id/events", s.replayEventsHandler)
		v1.POST("/investigations/:id/cancel", s.cancelInvestigationHandler)
		v1.POST("/investigations/:id/input", s.provideInputHandler)
	}
	return r
}
