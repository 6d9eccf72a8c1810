package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shipsight/shipsight/pkg/events"
)

// streamInvestigationHandler handles GET /api/v1/investigations/:id/stream.
// Late subscribers get a snapshot frame before the live tail.
func (s *Server) streamInvestigationHandler(c *gin.Context) {
	sub, err := s.sup.Stream(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.streamEnvelopes(c, sub)
}

// replayEventsHandler handles GET /api/v1/investigations/:id/events. It
// serves the journalled wire records of a finished (or running)
// investigation verbatim.
func (s *Server) replayEventsHandler(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event journal not configured"})
		return
	}

	records, err := s.journal.Replay(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read event journal"})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no journalled events for investigation"})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)
	for _, rec := range records {
		if _, err := c.Writer.Write(rec); err != nil {
			return
		}
	}
}

// streamEnvelopes writes wire frames until the subscription closes (the
// investigation terminated) or the client goes away. Each frame is flushed
// on its own so downstream consumers observe events as they happen.
func (s *Server) streamEnvelopes(c *gin.Context, sub *events.Subscription) {
	defer sub.Cancel()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := c.Writer.Write(env.Wire); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			return
		}
	}
}
