package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 5 * time.Second

// healthHandler handles GET /health. The journal being down degrades the
// status but the engine itself keeps accepting investigations.
func (s *Server) healthHandler(c *gin.Context) {
	resp := &HealthResponse{
		Status:            "healthy",
		Journal:           "disabled",
		ActiveConnections: s.connManager.ActiveConnections(),
	}

	if s.journal != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.journal.Health(ctx); err != nil {
			resp.Status = "degraded"
			resp.Journal = "unreachable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.Journal = "healthy"
	}

	c.JSON(http.StatusOK, resp)
}
