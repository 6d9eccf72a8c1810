package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shipsight/shipsight/pkg/models"
	"github.com/shipsight/shipsight/pkg/supervisor"
)

// startInvestigationHandler handles POST /api/v1/investigations.
// With ?stream=1 the response body is the investigation's newline-framed
// event stream, held open until the investigation terminates.
func (s *Server) startInvestigationHandler(c *gin.Context) {
	var req StartInvestigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Description == "" && len(req.Identifiers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description or identifiers are required"})
		return
	}

	ticket := models.Ticket{
		Description: req.Description,
		Identifiers: req.Identifiers,
		ModeHint:    models.Mode(req.ModeHint),
		ShipperHint: req.ShipperHint,
		CarrierHint: req.CarrierHint,
		SubmittedAt: time.Now().UTC(),
	}
	opts := supervisor.Options{
		MaxIterations:   req.MaxIterations,
		Deadline:        time.Duration(req.DeadlineSeconds) * time.Second,
		EnabledAdapters: req.Adapters,
		Collaborative:   req.Collaborative,
	}

	id, sub, err := s.sup.Start(ticket, opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("investigation started", "investigation_id", id)

	if c.Query("stream") == "1" {
		s.streamEnvelopes(c, sub)
		return
	}
	sub.Cancel()

	c.JSON(http.StatusAccepted, &InvestigationResponse{
		InvestigationID: id,
		Status:          "accepted",
		Message:         "investigation queued for intake",
	})
}

// getInvestigationHandler handles GET /api/v1/investigations/:id.
func (s *Server) getInvestigationHandler(c *gin.Context) {
	inv, err := s.sup.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, inv)
}

// cancelInvestigationHandler handles POST /api/v1/investigations/:id/cancel.
func (s *Server) cancelInvestigationHandler(c *gin.Context) {
	var req CancelRequest
	_ = c.ShouldBindJSON(&req) // body is optional
	if req.Reason == "" {
		req.Reason = "cancelled by operator"
	}

	id := c.Param("id")
	if err := s.sup.Cancel(id, req.Reason); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, &CancelResponse{
		InvestigationID: id,
		Message:         "cancellation requested",
	})
}

// provideInputHandler handles POST /api/v1/investigations/:id/input. The
// investigation must be waiting in the needs_human phase.
func (s *Server) provideInputHandler(c *gin.Context) {
	var req ProvideInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	switch err := s.sup.ProvideHumanInput(id, req.Answer); {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"investigation_id": id, "message": "input accepted"})
	case errors.Is(err, supervisor.ErrUnknownInvestigation):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, supervisor.ErrInvalidPhase):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
