package api

// StartInvestigationRequest is the HTTP request body for
// POST /api/v1/investigations.
type StartInvestigationRequest struct {
	Description string            `json:"description"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	ModeHint    string            `json:"mode_hint,omitempty"`
	ShipperHint string            `json:"shipper_hint,omitempty"`
	CarrierHint string            `json:"carrier_hint,omitempty"`

	Collaborative   bool     `json:"collaborative,omitempty"`
	MaxIterations   int      `json:"max_iterations,omitempty"`
	DeadlineSeconds int      `json:"deadline_seconds,omitempty"`
	Adapters        []string `json:"adapters,omitempty"`
}

// ProvideInputRequest is the HTTP request body for
// POST /api/v1/investigations/:id/input.
type ProvideInputRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// CancelRequest is the optional HTTP request body for
// POST /api/v1/investigations/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}
