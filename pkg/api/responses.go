package api

// InvestigationResponse is returned by POST /api/v1/investigations.
type InvestigationResponse struct {
	InvestigationID string `json:"investigation_id"`
	Status          string `json:"status"`
	Message         string `json:"message,omitempty"`
}

// CancelResponse is returned by POST /api/v1/investigations/:id/cancel.
type CancelResponse struct {
	InvestigationID string `json:"investigation_id"`
	Message         string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	Journal           string `json:"journal"`
	ActiveConnections int    `json:"active_connections"`
}
