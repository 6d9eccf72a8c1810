package models

import "time"

// Phase is the investigation lifecycle phase. Phases are monotonic with one
// exception: the supervisor may re-enter collecting from reasoning when the
// hypothesis engine requests additional targeted queries, bounded by the
// iteration counter.
type Phase string

const (
	PhaseIntake       Phase = "intake"
	PhaseCollecting   Phase = "collecting"
	PhaseReasoning    Phase = "reasoning"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseComplete     Phase = "complete"
	PhaseNeedsHuman   Phase = "needs_human"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether the phase ends the investigation.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Status is the terminal status carried by the complete event.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusNeedsHuman Status = "needs_human"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Heartbeat is the live progress snapshot emitted on the heartbeat event.
type Heartbeat struct {
	Progress           float64  `json:"progress"`
	CurrentActivity    string   `json:"current_activity"`
	AgentsRunning      []string `json:"agents_running"`
	DataSourcesQueried int      `json:"data_sources_queried"`
	DataSourcesTotal   int      `json:"data_sources_total"`
}

// Investigation is one run of the engine over one ticket. The supervisor
// exclusively owns this object; all mutation is serialized on its goroutine.
type Investigation struct {
	ID          string                 `json:"id"`
	Ticket      Ticket                 `json:"ticket"`
	Identifiers Identifiers            `json:"identifiers"`
	Provenance  map[Slot]Provenance    `json:"provenance,omitempty"`
	Mode        Mode                   `json:"mode"`
	Phase       Phase                  `json:"phase"`
	Iteration   int                    `json:"iteration"`
	MaxIter     int                    `json:"max_iterations"`
	Hypotheses  map[string]*Hypothesis `json:"hypotheses"`
	Evidence    []Evidence             `json:"evidence"`
	Heartbeat   Heartbeat              `json:"heartbeat"`

	RootCause    *RootCause         `json:"root_cause,omitempty"`
	HumanRequest *HumanInputRequest `json:"human_request,omitempty"`
	Status       Status             `json:"status,omitempty"`
	CancelReason string             `json:"cancel_reason,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
