package events

import (
	"encoding/json"

	"github.com/shipsight/shipsight/pkg/models"
)

// StartedPayload is the payload for the started event.
type StartedPayload struct {
	InvestigationID string            `json:"investigation_id"`
	Description     string            `json:"description"`
	Identifiers     map[string]string `json:"identifiers,omitempty"`
	Mode            models.Mode       `json:"mode"`
	Timestamp       string            `json:"ts"` // RFC3339Nano
}

// AgentStartedPayload is the payload for the agent_started event.
type AgentStartedPayload struct {
	InvestigationID string `json:"investigation_id"`
	AgentID         string `json:"agent_id"`
	Source          string `json:"source"`
	Iteration       int    `json:"iteration"`
	Timestamp       string `json:"ts"`
}

// AgentFinishedPayload is the payload for the agent_finished event.
type AgentFinishedPayload struct {
	InvestigationID string `json:"investigation_id"`
	AgentID         string `json:"agent_id"`
	Source          string `json:"source"`
	Status          string `json:"status"` // completed, failed, timed_out, cancelled
	DurationMs      int64  `json:"duration_ms"`
	EvidenceCount   int    `json:"evidence_count"`
	Timestamp       string `json:"ts"`
}

// QueryExecutedPayload is the payload for the query_executed event.
// Raw is capped at the configured raw-payload limit; larger payloads are
// truncated with the Truncated flag set.
type QueryExecutedPayload struct {
	InvestigationID  string          `json:"investigation_id"`
	Source           string          `json:"source"`
	QueryFingerprint string          `json:"query_fingerprint"`
	DurationMs       int64           `json:"duration_ms"`
	ResultCount      *int            `json:"result_count,omitempty"`
	Error            string          `json:"error,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
	Truncated        bool            `json:"truncated,omitempty"`
}

// EvidenceAddedPayload is the payload for the evidence_added event.
type EvidenceAddedPayload struct {
	InvestigationID  string     `json:"investigation_id"`
	EvidenceID       string     `json:"evidence_id"`
	Source           string     `json:"source"`
	Finding          string     `json:"finding"`
	Supports         bool       `json:"supports"`
	Weight           int        `json:"weight"`
	SourceConfidence Confidence `json:"source_confidence"`
	HypothesisID     string     `json:"hypothesis_id,omitempty"`
	Timestamp        string     `json:"ts"`
}

// HypothesisPayload is shared by hypothesis_added, hypothesis_updated, and
// hypothesis_eliminated events.
type HypothesisPayload struct {
	InvestigationID string                 `json:"investigation_id"`
	HypothesisID    string                 `json:"hypothesis_id"`
	Category        models.Category        `json:"category"`
	Description     string                 `json:"description"`
	Confidence      Confidence             `json:"confidence"`
	State           models.HypothesisState `json:"state"`
	EvidenceFor     []string               `json:"evidence_for"`
	EvidenceAgainst []string               `json:"evidence_against"`
}

// DecisionPayload is the payload for the decision event (collaborative mode).
// It records an explicit choice to dispatch a targeted query.
type DecisionPayload struct {
	InvestigationID string            `json:"investigation_id"`
	Source          string            `json:"source"`
	Scope           map[string]string `json:"scope,omitempty"`
	Reason          string            `json:"reason"`
	Timestamp       string            `json:"ts"`
}

// DiscussionPayload is the payload for the discussion event (collaborative
// mode). Discussion messages are UI-oriented and excluded from scoring.
type DiscussionPayload struct {
	InvestigationID string `json:"investigation_id"`
	AgentID         string `json:"agent_id"`
	MessageType     string `json:"message_type"` // observation, proposal, agreement, disagreement
	Message         string `json:"message"`
	Timestamp       string `json:"ts"`
}

// HeartbeatPayload is the payload for the periodic heartbeat event.
type HeartbeatPayload struct {
	InvestigationID    string     `json:"investigation_id"`
	Progress           Confidence `json:"progress"`
	CurrentActivity    string     `json:"current_activity"`
	AgentsRunning      []string   `json:"agents_running"`
	DataSourcesQueried int        `json:"data_sources_queried"`
	DataSourcesTotal   int        `json:"data_sources_total"`
}

// RootCausePayload is the payload for the root_cause event.
type RootCausePayload struct {
	InvestigationID    string                     `json:"investigation_id"`
	Category           models.Category            `json:"category"`
	Description        string                     `json:"description"`
	Confidence         Confidence                 `json:"confidence"`
	RecommendedActions []models.RecommendedAction `json:"recommended_actions"`
}

// NeedsHumanContext summarizes investigation state for the analyst.
type NeedsHumanContext struct {
	Hypotheses         []NeedsHumanHypothesis `json:"hypotheses"`
	MissingIdentifiers []string               `json:"missing_identifiers"`
}

// NeedsHumanHypothesis is one candidate shown to the analyst.
type NeedsHumanHypothesis struct {
	ID         string          `json:"id"`
	Category   models.Category `json:"category"`
	Confidence Confidence      `json:"confidence"`
}

// NeedsHumanPayload is the payload for the needs_human event.
type NeedsHumanPayload struct {
	InvestigationID string            `json:"investigation_id"`
	Question        string            `json:"question"`
	Context         NeedsHumanContext `json:"context"`
}

// CompletePayload is the terminal payload of every investigation.
type CompletePayload struct {
	InvestigationID string        `json:"investigation_id"`
	Status          models.Status `json:"status"`
	DurationMs      int64         `json:"duration_ms"`
	Error           string        `json:"error,omitempty"`
}

// SnapshotPayload summarizes current state for a late subscriber. It is
// delivered once, before live events.
type SnapshotPayload struct {
	InvestigationID string              `json:"investigation_id"`
	Phase           models.Phase        `json:"phase"`
	Iteration       int                 `json:"iteration"`
	Mode            models.Mode         `json:"mode"`
	Identifiers     map[string]string   `json:"identifiers,omitempty"`
	EvidenceCount   int                 `json:"evidence_count"`
	Hypotheses      []HypothesisPayload `json:"hypotheses"`
	LastSeq         int64               `json:"last_seq"`
}
